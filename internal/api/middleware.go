package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/auth"
	"github.com/shehryarbajwa/virtual-lab/internal/ratelimit"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id, reusing the caller's when present.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		klog.V(2).InfoS("Handled request", "method", r.Method, "path", r.URL.Path, "requestID", id, "duration", time.Since(start))
	})
}

// AuthMiddleware resolves the caller from a verified bearer token. Browsers
// cannot set headers on a WebSocket handshake, so access_token is accepted
// there. The token is kept in keyring for calls made on the user's behalf later.
func AuthMiddleware(verifier *auth.Verifier, keyring *auth.Keyring) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r)
			if err != nil && websocketRequest(r) {
				if t := r.URL.Query().Get("access_token"); t != "" {
					token, err = t, nil
				}
			}
			if err != nil {
				writeError(w, err, nil)
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				klog.V(2).InfoS("Rejected bearer token", "path", r.URL.Path, "err", err)
				writeError(w, err, nil)
				return
			}

			if keyring != nil {
				keyring.Remember(id.UserID, token, id.ExpiresAt)
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), id.UserID)))
		})
	}
}

// RateLimitMiddleware creates a middleware that enforces rate limits per user
func RateLimitMiddleware(limiter *ratelimit.Limiter, requestsPerHour int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userID(r)
			if user == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(user) {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(requestsPerHour))
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error: fmt.Sprintf("Rate limit exceeded. Maximum %d requests per hour per user.", requestsPerHour),
				})
				return
			}

			tokens := limiter.Tokens(user)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(requestsPerHour))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(tokens)))

			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func websocketRequest(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" && r.URL.Path == eventsPath
}
