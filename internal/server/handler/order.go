package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/executor"
)

// OrderEngine exposes the watchdog's pending set and explicit cancels.
type OrderEngine interface {
	ListPending() []domain.PendingOrder
	Cancel(ctx context.Context, orderID string) (executor.CancelResult, error)
}

// OrderHandler serves order endpoints.
type OrderHandler struct {
	engine OrderEngine
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(engine OrderEngine, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{engine: engine, logger: logger}
}

// ListPending returns orders awaiting the auto-cancel check.
// GET /api/orders/pending
func (h *OrderHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	orders := h.engine.ListPending()
	if orders == nil {
		orders = []domain.PendingOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

// CancelOrder cancels an order by id.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Cancel(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeFailure(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"order_id":         res.OrderID,
		"was_pending":      res.WasPending,
		"already_resolved": res.AlreadyResolved,
	})
}
