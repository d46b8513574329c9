// Package server exposes the engine over HTTP for the operator dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/server/handler"
	"github.com/alanyoungcy/latencyarb/internal/server/middleware"
	"github.com/alanyoungcy/latencyarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server registers. Metrics
// and Hub may be nil.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Status    *handler.StatusHandler
	Hub       *ws.Hub
	Metrics   http.Handler
}

// Server is the HTTP + WebSocket front end.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps them in logging, CORS and, for
// /api routes other than health, auth.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/auth", h.Markets.Authenticate)
	api.HandleFunc("GET /api/balance", h.Markets.Balance)
	api.HandleFunc("POST /api/ticker", h.Markets.SetTicker)
	api.HandleFunc("GET /api/orderbook", h.Markets.Orderbook)
	api.HandleFunc("GET /api/depth", h.Markets.Depth)
	api.HandleFunc("GET /api/markets", h.Markets.SearchMarkets)
	api.HandleFunc("POST /api/trade", h.Trades.Trade)
	api.HandleFunc("GET /api/positions", h.Positions.ListPositions)
	api.HandleFunc("GET /api/stats", h.Status.Stats)
	api.HandleFunc("POST /api/reset-session", h.Status.Reset)
	api.HandleFunc("GET /api/orders/pending", h.Orders.ListPending)
	api.HandleFunc("DELETE /api/orders/{id}", h.Orders.CancelOrder)
	if h.Hub != nil {
		api.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /api/health", h.Health.HealthCheck)
	if h.Metrics != nil {
		root.Handle("GET /metrics", h.Metrics)
	}
	root.Handle("/", middleware.Auth(cfg.APIKey)(api))

	var wrapped http.Handler = root
	wrapped = middleware.Logging(logger)(wrapped)
	wrapped = middleware.CORS(cfg.CORSOrigins)(wrapped)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      wrapped,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
