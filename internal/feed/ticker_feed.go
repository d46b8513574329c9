// Package feed keeps reference prices current from the exchange websocket.
package feed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/latencyarb/internal/metrics"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
	"github.com/alanyoungcy/latencyarb/internal/service"
)

const defaultBuffer = 256

// Source is a stream of ticker updates, normally *kalshi.WSClient.
type Source interface {
	OnTicker(handler kalshi.TickerHandler)
	SetTickers(tickers []string) error
	Run(ctx context.Context) error
}

// TickerFeed moves websocket ticker updates into the price service off the
// socket's read loop. When the queue is full the newest update is dropped;
// the next one supersedes it anyway.
type TickerFeed struct {
	source  Source
	prices  *service.PriceService
	metrics *metrics.Metrics
	logger  *slog.Logger
	updates chan kalshi.TickerUpdate
}

// NewTickerFeed creates a TickerFeed. metrics may be nil.
func NewTickerFeed(source Source, prices *service.PriceService, m *metrics.Metrics, logger *slog.Logger) *TickerFeed {
	f := &TickerFeed{
		source:  source,
		prices:  prices,
		metrics: m,
		logger:  logger.With(slog.String("component", "ticker_feed")),
		updates: make(chan kalshi.TickerUpdate, defaultBuffer),
	}
	source.OnTicker(f.enqueue)
	return f
}

// Track switches the subscription to ticker. It matches the engine's ticker
// change hook.
func (f *TickerFeed) Track(ticker string) {
	if ticker == "" {
		return
	}
	if err := f.source.SetTickers([]string{ticker}); err != nil {
		f.logger.Warn("subscribe failed", slog.String("ticker", ticker), slog.String("error", err.Error()))
		return
	}
	f.logger.Info("tracking ticker", slog.String("ticker", ticker))
}

func (f *TickerFeed) enqueue(u kalshi.TickerUpdate) {
	select {
	case f.updates <- u:
	default:
		f.logger.Debug("feed queue full, dropping update", slog.String("ticker", u.Ticker))
	}
}

// Run drives the source and the consumer until ctx is done.
func (f *TickerFeed) Run(ctx context.Context) error {
	f.logger.Info("ticker feed started")
	defer f.logger.Info("ticker feed stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.source.Run(gctx) })
	g.Go(func() error { return f.consume(gctx) })
	return g.Wait()
}

func (f *TickerFeed) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-f.updates:
			f.handle(ctx, u)
		}
	}
}

func (f *TickerFeed) handle(ctx context.Context, u kalshi.TickerUpdate) {
	f.metrics.FeedUpdate()
	err := f.prices.HandleQuote(ctx, service.Quote{
		Ticker: u.Ticker,
		YesBid: u.YesBid,
		NoBid:  u.NoBid,
		At:     u.Received,
		Source: "ws",
	})
	if err != nil {
		f.logger.Debug("store quote failed",
			slog.String("ticker", u.Ticker),
			slog.String("error", err.Error()),
		)
	}
}
