package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/latencyarb/internal/executor"
	"github.com/alanyoungcy/latencyarb/internal/feed"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
	"github.com/alanyoungcy/latencyarb/internal/server"
	"github.com/alanyoungcy/latencyarb/internal/server/handler"
	"github.com/alanyoungcy/latencyarb/internal/server/ws"
	"github.com/alanyoungcy/latencyarb/internal/service"
	"github.com/alanyoungcy/latencyarb/internal/watchdog"
)

// core is the engine plus the services it was built from.
type core struct {
	prices *service.PriceService
	market *service.MarketService
	engine *executor.Engine
}

func (a *App) buildCore(deps *Dependencies) *core {
	prices := service.NewPriceService(deps.PriceCache, deps.Bus, a.logger)
	market := service.NewMarketService(deps.Exchange, prices, a.cfg.Execution.LiquidityFloor, a.logger)

	ex := a.cfg.Execution
	engine := executor.New(executor.Deps{
		Market:   market,
		Orders:   deps.Exchange,
		Prices:   prices,
		Bus:      deps.Bus,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
		Clock:    watchdog.RealClock{},
		Logger:   a.logger,
	}, executor.Config{
		BuyBufferCents:    ex.BuyBufferCents,
		SlowThreshold:     ex.SlowThreshold.Duration,
		RecentTrades:      ex.RecentTrades,
		CancelDelay:       ex.CancelDelay.Duration,
		CancelTimeout:     ex.CancelTimeout.Duration,
		ClientOrderPrefix: ex.ClientOrderPrefix,
		DefaultTicker:     ex.DefaultTicker,
		DedupWindow:       ex.DedupWindow.Duration,
	})
	a.closers = append(a.closers, engine.Close)
	return &core{prices: prices, market: market, engine: engine}
}

// ServeMode runs the engine behind the HTTP API, the dashboard hub and,
// when enabled, the websocket price feed.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	c := a.buildCore(deps)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Feed.Enabled {
		wsClient, err := kalshi.NewWSClient(a.cfg.Kalshi.WSURL, deps.Transport.HandshakeHeaders, a.logger)
		if err != nil {
			return fmt.Errorf("app: feed: %w", err)
		}
		tickerFeed := feed.NewTickerFeed(wsClient, c.prices, deps.Metrics, a.logger)
		c.engine.OnTickerChange(tickerFeed.Track)
		if t := c.engine.Ticker(); t != "" {
			tickerFeed.Track(t)
		}
		g.Go(func() error {
			return tickerFeed.Run(gctx)
		})
	}

	hub := ws.NewHub(deps.Bus, func() any { return c.engine.Stats() }, a.logger)
	g.Go(func() error {
		return hub.Run(gctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, c, hub, deps)
	}

	// Component errors caused by shutdown are not failures.
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, c *core, hub *ws.Hub, deps *Dependencies) {
	var metricsHandler http.Handler
	if deps.Metrics != nil {
		metricsHandler = deps.Metrics.Handler()
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(c.engine, a.logger),
		Markets:   handler.NewMarketHandler(c.engine, a.logger),
		Trades:    handler.NewTradeHandler(c.engine, c.prices, a.cfg.Execution.ReferenceMaxAge.Duration, a.logger),
		Orders:    handler.NewOrderHandler(c.engine, a.logger),
		Positions: handler.NewPositionHandler(c.engine, a.logger),
		Status:    handler.NewStatusHandler(c.engine, a.logger),
		Hub:       hub,
		Metrics:   metricsHandler,
	}, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// CheckMode authenticates, reports the balance and, with a default ticker,
// the current book depth. It is a credentials smoke test.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	c := a.buildCore(deps)

	info, err := c.engine.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("app: check: authenticate: %w", err)
	}
	bal, err := c.engine.Balance(ctx)
	if err != nil {
		return fmt.Errorf("app: check: balance: %w", err)
	}
	a.logger.InfoContext(ctx, "credentials ok",
		slog.String("auth_mode", string(info.Mode)),
		slog.Int64("balance_cents", bal.BalanceCents),
	)

	if c.engine.Ticker() == "" {
		return nil
	}
	d, err := c.engine.GetDepth(ctx, "")
	if err != nil {
		return fmt.Errorf("app: check: depth: %w", err)
	}
	a.logger.InfoContext(ctx, "market depth",
		slog.String("ticker", d.Ticker),
		slog.Int64("yes_depth", d.YesDepth),
		slog.Int64("no_depth", d.NoDepth),
		slog.Bool("sufficient_yes", d.SufficientYes),
		slog.Bool("sufficient_no", d.SufficientNo),
	)
	return nil
}
