package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/auth"
)

const maxResponseBytes = 4 << 20

// Client issues authenticated JSON requests against a gateway base URL.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenProvider
}

// NewClient creates a gateway client. A nil httpClient gets one bounded by timeout.
func NewClient(baseURL string, tokens auth.TokenProvider, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

// Response is a completed 2xx call.
type Response struct {
	Status int
	Body   []byte
}

// Do sends body (JSON-encoded when non-nil) to path and returns the 2xx response.
// Token failures are returned as auth.ErrUnauthenticated before any network I/O.
func (c *Client) Do(ctx context.Context, op, method, path string, body any) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, transport(op, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	klog.V(4).InfoS("Calling lab gateway", "op", op, "method", method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transport(op, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transport(op, resp.StatusCode, err)
	}

	klog.V(4).InfoS("Lab gateway responded", "op", op, "status", resp.StatusCode, "bytes", len(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transport(op, resp.StatusCode, nil)
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}
