package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// StatusSource reports what the health check shows.
type StatusSource interface {
	Ticker() string
	PendingCount() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	source    StatusSource
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. source may be nil.
func NewHealthHandler(source StatusSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{source: source, startedAt: time.Now().UTC(), logger: logger}
}

// HealthCheck responds with liveness and a little engine state.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.source != nil {
		body["ticker"] = h.source.Ticker()
		body["pending_orders"] = h.source.PendingCount()
	}
	writeJSON(w, http.StatusOK, body)
}
