package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/executor"
)

// TradeEngine executes operator orders.
type TradeEngine interface {
	Ticker() string
	ExecuteBuy(ctx context.Context, req executor.TradeRequest) (executor.TradeResult, error)
	ExecuteSell(ctx context.Context, req executor.TradeRequest) (executor.TradeResult, error)
}

// ReferenceSource supplies a cached best bid when a buy omits its
// reference price.
type ReferenceSource interface {
	Reference(ctx context.Context, ticker string, side domain.Side, maxAge time.Duration) (int64, time.Time, error)
}

// TradeHandler serves the trade endpoint.
type TradeHandler struct {
	engine TradeEngine
	refs   ReferenceSource
	maxAge time.Duration
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler. With a nil refs or a zero maxAge
// every buy must carry its own reference price.
func NewTradeHandler(engine TradeEngine, refs ReferenceSource, maxAge time.Duration, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{engine: engine, refs: refs, maxAge: maxAge, logger: logger}
}

type tradeRequest struct {
	Action         string `json:"action"`
	Side           string `json:"side"`
	Count          int64  `json:"count"`
	Ticker         string `json:"ticker"`
	ReferencePrice *int64 `json:"reference_price"`
	RequestID      string `json:"request_id"`
}

type tradeResponse struct {
	Success bool `json:"success"`
	executor.TradeResult
}

// Trade places a buy or sell.
// POST /api/trade {"action":"buy","side":"yes","count":10,"reference_price":45}
func (h *TradeHandler) Trade(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, r, h.logger, "trade", err)
		return
	}
	action, err := domain.ParseAction(body.Action)
	if err != nil {
		writeFailure(w, r, h.logger, "trade", err)
		return
	}
	side, err := domain.ParseSide(body.Side)
	if err != nil {
		writeFailure(w, r, h.logger, "trade", err)
		return
	}

	req := executor.TradeRequest{
		RequestID:           body.RequestID,
		Ticker:              body.Ticker,
		Side:                side,
		Count:               body.Count,
		ReferencePriceCents: body.ReferencePrice,
	}

	var res executor.TradeResult
	switch action {
	case domain.ActionBuy:
		if req.ReferencePriceCents == nil {
			if ref, ok := h.cachedReference(r.Context(), req.Ticker, side); ok {
				req.ReferencePriceCents = &ref
			}
		}
		res, err = h.engine.ExecuteBuy(r.Context(), req)
	case domain.ActionSell:
		res, err = h.engine.ExecuteSell(r.Context(), req)
	}
	if err != nil {
		writeFailure(w, r, h.logger, fmt.Sprintf("%s %s", action, side), err)
		return
	}
	writeJSON(w, http.StatusOK, tradeResponse{Success: true, TradeResult: res})
}

func (h *TradeHandler) cachedReference(ctx context.Context, ticker string, side domain.Side) (int64, bool) {
	if h.refs == nil || h.maxAge <= 0 {
		return 0, false
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		ticker = h.engine.Ticker()
	}
	if ticker == "" {
		return 0, false
	}
	ref, _, err := h.refs.Reference(ctx, ticker, side, h.maxAge)
	if err != nil {
		h.logger.DebugContext(ctx, "no cached reference price",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	return ref, true
}
