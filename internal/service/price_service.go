package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// Quote is a best-bid observation for both sides of one market. A zero bid
// means the side had no bids.
type Quote struct {
	Ticker string
	YesBid int64
	NoBid  int64
	At     time.Time
	Source string // "rest" or "ws"
}

// PriceService keeps the reference-price cache current and publishes price
// events on the bus.
type PriceService struct {
	cache  domain.PriceCache
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// NewPriceService creates a PriceService with all required dependencies.
func NewPriceService(cache domain.PriceCache, bus domain.EventBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "price_service")),
		now:    time.Now,
	}
}

// HandleQuote stores both best bids and publishes a price event.
func (s *PriceService) HandleQuote(ctx context.Context, q Quote) error {
	if q.At.IsZero() {
		q.At = s.now().UTC()
	}
	for _, side := range []struct {
		side domain.Side
		bid  int64
	}{{domain.SideYes, q.YesBid}, {domain.SideNo, q.NoBid}} {
		if side.bid <= 0 {
			continue
		}
		if err := s.cache.SetPrice(ctx, q.Ticker, side.side, side.bid, q.At); err != nil {
			return fmt.Errorf("price_service: set price for %q/%s: %w", q.Ticker, side.side, err)
		}
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "quote",
		"ticker":    q.Ticker,
		"yes_bid":   q.YesBid,
		"no_bid":    q.NoBid,
		"source":    q.Source,
		"timestamp": q.At.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelPrices, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish quote event failed",
			slog.String("ticker", q.Ticker),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// HandleSnapshot records the best bids of a freshly fetched orderbook.
func (s *PriceService) HandleSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	yes, _ := snap.BestBid(domain.SideYes)
	no, _ := snap.BestBid(domain.SideNo)
	return s.HandleQuote(ctx, Quote{Ticker: snap.Ticker, YesBid: yes, NoBid: no, At: snap.FetchedAt, Source: "rest"})
}

// Reference returns the cached best bid for ticker/side. Entries older than
// maxAge are refused; maxAge <= 0 accepts any age.
func (s *PriceService) Reference(ctx context.Context, ticker string, side domain.Side, maxAge time.Duration) (int64, time.Time, error) {
	cents, ts, err := s.cache.GetPrice(ctx, ticker, side)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, time.Time{}, fmt.Errorf("%w: no reference price for %s/%s", domain.ErrPrecondition, ticker, side)
		}
		return 0, time.Time{}, fmt.Errorf("price_service: get price for %q/%s: %w", ticker, side, err)
	}
	if maxAge > 0 && s.now().Sub(ts) > maxAge {
		return 0, time.Time{}, fmt.Errorf("%w: reference price for %s/%s is %s old", domain.ErrPrecondition, ticker, side, s.now().Sub(ts).Round(time.Millisecond))
	}
	return cents, ts, nil
}
