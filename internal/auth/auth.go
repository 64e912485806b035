// Package auth verifies the bearer tokens callers present and supplies
// tokens for upstream calls made on their behalf.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated means no usable bearer token is available.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenProvider returns a bearer token for one upstream call.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: no token configured", ErrUnauthenticated)
	}
	return string(s), nil
}

// Identity is what the dashboard needs from a token.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Verifier checks bearer token signatures against a shared HMAC secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// Verify checks the token's signature and expiry and reads its user.
func (v *Verifier) Verify(token string) (Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: no verification key configured", ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return identityFrom(claims)
}

func identityFrom(claims jwt.MapClaims) (Identity, error) {
	var id Identity
	for _, key := range []string{"cognito:username", "username", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			id.UserID = v
			break
		}
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	return strings.TrimSpace(token), nil
}

type userKey struct{}

// WithUser stores the authenticated user id on a context.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the user id stored by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userKey{}).(string)
	return v, ok && v != ""
}

// Keyring remembers the latest token each user presented so that work
// triggered without a request (the session timer) can still authenticate.
type Keyring struct {
	mu     sync.RWMutex
	tokens map[string]entry
	now    func() time.Time
}

type entry struct {
	token     string
	expiresAt time.Time
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		tokens: make(map[string]entry),
		now:    time.Now,
	}
}

// Remember records a token for a user. A zero expiry never expires.
func (k *Keyring) Remember(userID, token string, expiresAt time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tokens[userID] = entry{token: token, expiresAt: expiresAt}
}

// Forget drops a user's token.
func (k *Keyring) Forget(userID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.tokens, userID)
}

// Provider returns a TokenProvider bound to one user.
func (k *Keyring) Provider(userID string) TokenProvider {
	return TokenFunc(func(context.Context) (string, error) {
		k.mu.RLock()
		e, ok := k.tokens[userID]
		k.mu.RUnlock()

		if !ok {
			return "", fmt.Errorf("%w: no token for user %s", ErrUnauthenticated, userID)
		}
		if !e.expiresAt.IsZero() && !k.now().Before(e.expiresAt) {
			return "", fmt.Errorf("%w: token for user %s expired", ErrUnauthenticated, userID)
		}
		return e.token, nil
	})
}
