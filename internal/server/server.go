// Package server exposes the dictation session to the clinic front-end:
// JSON control endpoints plus a websocket pushing live session snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/clinicscribe/dictation-gateway/internal/capture"
	"github.com/clinicscribe/dictation-gateway/internal/observability"
	"github.com/clinicscribe/dictation-gateway/internal/recognition"
	"github.com/clinicscribe/dictation-gateway/internal/session"
)

// SessionController is the server-facing subset of the session orchestrator.
type SessionController interface {
	Start(ctx context.Context) error
	Stop() string
	Reset()
	Snapshot() session.Snapshot
}

// Handler serves the session control API.
type Handler struct {
	sessions SessionController
	logger   zerolog.Logger
}

// NewHandler creates the API handler around a session controller.
func NewHandler(sessions SessionController) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   observability.WithComponent("server"),
	}
}

// Register attaches all session routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/session/start", h.handleStart)
	mux.HandleFunc("/api/session/stop", h.handleStop)
	mux.HandleFunc("/api/session/reset", h.handleReset)
	mux.HandleFunc("/api/session/status", h.handleStatus)
	mux.HandleFunc("/ws/session", h.handleLiveSession)
}

type stopResponse struct {
	Transcript string        `json:"transcript"`
	State      session.State `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.sessions.Start(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Session start rejected")
		writeJSON(w, startErrorStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transcript := h.sessions.Stop()
	writeJSON(w, http.StatusOK, stopResponse{
		Transcript: transcript,
		State:      h.sessions.Snapshot().State,
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.sessions.Reset()
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// startErrorStatus maps pipeline failures to HTTP statuses the front-end can
// distinguish: permission problems, recognizer unavailability, and the rest.
func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, recognition.ErrConnectTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, recognition.ErrConnectionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
