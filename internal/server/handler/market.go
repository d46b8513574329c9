package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
)

// MarketEngine is the market-data side of the engine.
type MarketEngine interface {
	Authenticate(ctx context.Context) (kalshi.AuthInfo, error)
	Balance(ctx context.Context) (domain.Balance, error)
	SetTicker(ctx context.Context, ticker string) (domain.Market, error)
	Ticker() string
	GetSnapshot(ctx context.Context, ticker string) (domain.MarketSnapshot, error)
	GetDepth(ctx context.Context, ticker string) (domain.Depth, error)
	SearchMarkets(ctx context.Context, prefix string, limit int) ([]domain.Market, error)
}

// MarketHandler serves auth, account and market-data endpoints.
type MarketHandler struct {
	engine MarketEngine
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(engine MarketEngine, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{engine: engine, logger: logger}
}

// Authenticate forces a login or validates the API key.
// POST /api/auth
func (h *MarketHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.Authenticate(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "authenticate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "auth": info})
}

// Balance returns the account balance.
// GET /api/balance
func (h *MarketHandler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.engine.Balance(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

type setTickerRequest struct {
	Ticker string `json:"ticker"`
}

// SetTicker validates and activates a ticker.
// POST /api/ticker {"ticker":"KX..."}
func (h *MarketHandler) SetTicker(w http.ResponseWriter, r *http.Request) {
	var req setTickerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, h.logger, "set ticker", err)
		return
	}
	m, err := h.engine.SetTicker(r.Context(), req.Ticker)
	if err != nil {
		writeFailure(w, r, h.logger, "set ticker", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ticker": m.Ticker, "market": m})
}

// Orderbook returns a fresh snapshot of ?ticker= or the active ticker.
// GET /api/orderbook
func (h *MarketHandler) Orderbook(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GetSnapshot(r.Context(), r.URL.Query().Get("ticker"))
	if err != nil {
		writeFailure(w, r, h.logger, "orderbook", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orderbook":  snap,
		"latency_ms": float64(snap.Latency.Microseconds()) / 1000,
	})
}

// Depth returns per-side liquidity against the configured floor.
// GET /api/depth
func (h *MarketHandler) Depth(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.GetDepth(r.Context(), r.URL.Query().Get("ticker"))
	if err != nil {
		writeFailure(w, r, h.logger, "depth", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SearchMarkets lists open markets by ticker prefix.
// GET /api/markets?prefix=KXBTC&limit=50
func (h *MarketHandler) SearchMarkets(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	markets, err := h.engine.SearchMarkets(r.Context(), prefix, queryInt(r, "limit", 50, 500))
	if err != nil {
		writeFailure(w, r, h.logger, "search markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}
