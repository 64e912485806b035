package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/auth"
	"github.com/shehryarbajwa/virtual-lab/internal/control"
	"github.com/shehryarbajwa/virtual-lab/internal/files"
	"github.com/shehryarbajwa/virtual-lab/internal/remote"
	"github.com/shehryarbajwa/virtual-lab/internal/session"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

// FilesFactory returns the file browser client for a user.
type FilesFactory func(userID string) files.Lister

const defaultStartTimeout = time.Minute

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions     *session.Manager
	files        FilesFactory
	startTimeout time.Duration
}

// NewHandler creates a new HTTP handler. startTimeout bounds the upstream
// start call, which is not tied to the client's connection.
func NewHandler(sessions *session.Manager, filesFor FilesFactory, startTimeout time.Duration) *Handler {
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	return &Handler{
		sessions:     sessions,
		files:        filesFor,
		startTimeout: startTimeout,
	}
}

type errorResponse struct {
	Error   string             `json:"error"`
	Session *models.LabSession `json:"session,omitempty"`
}

// GetLab handles GET /v1/lab
func (h *Handler) GetLab(w http.ResponseWriter, r *http.Request) {
	m := h.sessions.Get(userID(r))
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// StartLab handles POST /v1/lab/start
func (h *Handler) StartLab(w http.ResponseWriter, r *http.Request) {
	m := h.sessions.Get(userID(r))

	// A client that hangs up must not lose the handle of a lab the
	// gateway already started.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.startTimeout)
	defer cancel()

	lab, err := m.Launch(ctx)
	if err != nil {
		writeError(w, err, &lab)
		return
	}

	writeJSON(w, http.StatusAccepted, lab)
}

// StopLab handles POST /v1/lab/stop
func (h *Handler) StopLab(w http.ResponseWriter, r *http.Request) {
	m := h.sessions.Get(userID(r))

	lab, err := m.Stop(r.Context())
	if err != nil {
		writeError(w, err, &lab)
		return
	}

	writeJSON(w, http.StatusOK, lab)
}

// ListFiles handles GET /v1/files
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	listing, err := h.files(userID(r)).List(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// DeleteFile handles DELETE /v1/files
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteFileRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	if err := h.files(userID(r)).Delete(r.Context(), req.FilePath); err != nil {
		writeError(w, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"labs":   len(h.sessions.ListSessions(models.StatusRunning)),
	})
}

// statusFor maps an operation error to the HTTP status returned for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrAlreadyRunning),
		errors.Is(err, control.ErrMissingHandle):
		return http.StatusConflict
	case errors.Is(err, files.ErrMissingPath):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed), errors.Is(err, files.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, remote.ErrTransport),
		errors.Is(err, remote.ErrDecode),
		errors.Is(err, remote.ErrSemantic):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, lab *models.LabSession) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		klog.ErrorS(err, "Request failed", "status", status)
	}
	writeJSON(w, status, errorResponse{Error: remote.UserMessage(err), Session: lab})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.V(2).InfoS("Failed to write response", "err", err)
	}
}

func userID(r *http.Request) string {
	id, _ := auth.UserFrom(r.Context())
	return id
}
