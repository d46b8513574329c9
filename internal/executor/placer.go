package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
)

// OrderSubmitter sends one limit order to the exchange.
type OrderSubmitter interface {
	PlaceOrder(ctx context.Context, req kalshi.OrderRequest) (domain.Order, error)
}

// OrderPlacer validates and submits limit orders with fresh client ids.
type OrderPlacer struct {
	exchange OrderSubmitter
	ids      *ClientOrderIDs
	logger   *slog.Logger
}

// NewOrderPlacer creates an OrderPlacer.
func NewOrderPlacer(exchange OrderSubmitter, ids *ClientOrderIDs, logger *slog.Logger) *OrderPlacer {
	return &OrderPlacer{
		exchange: exchange,
		ids:      ids,
		logger:   logger.With(slog.String("component", "order_placer")),
	}
}

// PlaceOrder submits a limit order. The count must be positive and the price
// is clamped into [1,99].
func (p *OrderPlacer) PlaceOrder(ctx context.Context, ticker string, side domain.Side, action domain.Action, count, priceCents int64) (domain.Order, error) {
	if ticker == "" {
		return domain.Order{}, domain.ErrNoTicker
	}
	if count <= 0 {
		return domain.Order{}, fmt.Errorf("%w: count must be positive, got %d", domain.ErrPrecondition, count)
	}
	if _, err := domain.ParseSide(string(side)); err != nil {
		return domain.Order{}, err
	}
	if _, err := domain.ParseAction(string(action)); err != nil {
		return domain.Order{}, err
	}

	req := kalshi.OrderRequest{
		Ticker:        ticker,
		ClientOrderID: p.ids.Next(),
		Side:          side,
		Action:        action,
		Count:         count,
		PriceCents:    domain.ClampPrice(priceCents),
	}
	order, err := p.exchange.PlaceOrder(ctx, req)
	if err != nil {
		p.logger.WarnContext(ctx, "order rejected",
			slog.String("client_order_id", req.ClientOrderID),
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		return domain.Order{}, fmt.Errorf("executor: place %s %s: %w", action, side, err)
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = req.ClientOrderID
	}
	if order.Ticker == "" {
		order.Ticker = ticker
	}
	if order.Side == "" {
		order.Side = side
	}
	if order.Action == "" {
		order.Action = action
	}
	order.Count = count

	p.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.OrderID),
		slog.String("client_order_id", order.ClientOrderID),
		slog.String("ticker", ticker),
		slog.String("side", string(side)),
		slog.String("action", string(action)),
		slog.Int64("count", count),
		slog.Int64("price_cents", req.PriceCents),
		slog.String("status", string(order.Status)),
	)
	return order, nil
}
