package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/virtual-lab/internal/auth"
	"github.com/shehryarbajwa/virtual-lab/internal/ratelimit"
)

const eventsPath = "/v1/lab/events"

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(verifier *auth.Verifier, keyring *auth.Keyring, rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware)

	r.HandleFunc("/healthz", h.Healthz).Methods("GET", "OPTIONS")

	// API v1 routes, all authenticated
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(AuthMiddleware(verifier, keyring))

	// Event stream (not rate limited - long lived)
	api.HandleFunc("/lab/events", h.Events).Methods("GET", "OPTIONS")

	rateLimitedAPI := api.PathPrefix("").Subrouter()
	rateLimitedAPI.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))

	// Lab endpoints
	rateLimitedAPI.HandleFunc("/lab", h.GetLab).Methods("GET", "OPTIONS")
	rateLimitedAPI.HandleFunc("/lab/start", h.StartLab).Methods("POST", "OPTIONS")
	rateLimitedAPI.HandleFunc("/lab/stop", h.StopLab).Methods("POST", "OPTIONS")

	// File browser endpoints
	rateLimitedAPI.HandleFunc("/files", h.ListFiles).Methods("GET", "OPTIONS")
	rateLimitedAPI.HandleFunc("/files", h.DeleteFile).Methods("DELETE", "OPTIONS")

	// CORS middleware
	r.Use(corsMiddleware)

	return r
}

// NewServer wraps a router in an http.Server with the server's timeouts.
// WriteTimeout is left unset so the event stream is not cut off.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
