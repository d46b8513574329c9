package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/executor"
)

// SessionEngine exposes session statistics and reset.
type SessionEngine interface {
	Stats() executor.Stats
	ResetSession(ctx context.Context) time.Time
}

// StatusHandler serves session statistics.
type StatusHandler struct {
	engine SessionEngine
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(engine SessionEngine, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{engine: engine, logger: logger}
}

// Stats returns the session summary, recent trades and positions.
// GET /api/stats
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// Reset clears the session.
// POST /api/reset-session
func (h *StatusHandler) Reset(w http.ResponseWriter, r *http.Request) {
	started := h.engine.ResetSession(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_start": started})
}
