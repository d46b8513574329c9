package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/executor"
)

// PositionEngine exposes the local ledger and the exchange's view.
type PositionEngine interface {
	Positions(ctx context.Context) []executor.PositionView
	ExchangePositions(ctx context.Context) ([]domain.ExchangePosition, error)
}

// PositionHandler serves position endpoints.
type PositionHandler struct {
	engine PositionEngine
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(engine PositionEngine, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{engine: engine, logger: logger}
}

// ListPositions returns the session ledger. With ?source=exchange it returns
// the exchange's positions for the active ticker instead.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "exchange" {
		positions, err := h.engine.ExchangePositions(r.Context())
		if err != nil {
			writeFailure(w, r, h.logger, "exchange positions", err)
			return
		}
		if positions == nil {
			positions = []domain.ExchangePosition{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": "exchange", "positions": positions})
		return
	}

	positions := h.engine.Positions(r.Context())
	if positions == nil {
		positions = []executor.PositionView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": "session", "positions": positions})
}
