package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/cache/memory"
	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeExchange struct {
	book      domain.MarketSnapshot
	bookErr   error
	pages     [][]domain.Market
	pageCalls int
	positions []domain.ExchangePosition
}

func (f *fakeExchange) Authenticate(context.Context) (kalshi.AuthInfo, error) {
	return kalshi.AuthInfo{Mode: kalshi.AuthModeKey}, nil
}

func (f *fakeExchange) GetMarket(_ context.Context, ticker string) (domain.Market, error) {
	return domain.Market{Ticker: ticker, Status: "open"}, nil
}

func (f *fakeExchange) GetMarkets(_ context.Context, q kalshi.MarketQuery) ([]domain.Market, string, error) {
	idx := 0
	if q.Cursor != "" {
		_, _ = fmt.Sscanf(q.Cursor, "p%d", &idx)
	}
	f.pageCalls++
	next := ""
	if idx+1 < len(f.pages) {
		next = fmt.Sprintf("p%d", idx+1)
	}
	return f.pages[idx], next, nil
}

func (f *fakeExchange) GetOrderbook(_ context.Context, ticker string) (domain.MarketSnapshot, error) {
	if f.bookErr != nil {
		return domain.MarketSnapshot{}, f.bookErr
	}
	snap := f.book
	snap.Ticker = ticker
	return snap, nil
}

func (f *fakeExchange) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{BalanceCents: 500, Dollars: 5}, nil
}

func (f *fakeExchange) GetPositions(context.Context, string) ([]domain.ExchangePosition, error) {
	return f.positions, nil
}

func levels(pairs ...[2]int64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.PriceLevel{PriceCents: p[0], Quantity: p[1]})
	}
	return out
}

func TestGetSnapshotUpdatesReferencePrices(t *testing.T) {
	ex := &fakeExchange{book: domain.MarketSnapshot{
		Yes:       levels([2]int64{1, 50}, [2]int64{45, 20}, [2]int64{60, 10}),
		No:        levels([2]int64{30, 5}, [2]int64{38, 7}),
		FetchedAt: time.Now().UTC(),
	}}
	cache := memory.NewPriceCache()
	prices := NewPriceService(cache, memory.NewEventBus(), discard())
	svc := NewMarketService(ex, prices, 0, discard())

	snap, err := svc.GetSnapshot(context.Background(), "KXTEST")
	require.NoError(t, err)
	assert.Equal(t, "KXTEST", snap.Ticker)

	ref, _, err := prices.Reference(context.Background(), "KXTEST", domain.SideYes, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 60, ref)
	ref, _, err = prices.Reference(context.Background(), "KXTEST", domain.SideNo, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 38, ref)
}

func TestGetDepthFlagsLiquidityFloor(t *testing.T) {
	ex := &fakeExchange{book: domain.MarketSnapshot{
		Yes: levels([2]int64{40, 300}, [2]int64{41, 250}),
		No:  levels([2]int64{55, 100}),
	}}
	svc := NewMarketService(ex, nil, 500, discard())

	d, err := svc.GetDepth(context.Background(), "KXTEST")
	require.NoError(t, err)
	assert.EqualValues(t, 550, d.YesDepth)
	assert.EqualValues(t, 100, d.NoDepth)
	assert.True(t, d.SufficientYes)
	assert.False(t, d.SufficientNo)
}

func TestGetSnapshotPropagatesTransportError(t *testing.T) {
	ex := &fakeExchange{bookErr: &domain.TransportError{StatusCode: 503}}
	svc := NewMarketService(ex, nil, 0, discard())

	_, err := svc.GetSnapshot(context.Background(), "KXTEST")
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 503, te.StatusCode)
}

func TestSearchMarketsPaginatesAndFilters(t *testing.T) {
	ex := &fakeExchange{pages: [][]domain.Market{
		{{Ticker: "KXBTC-1"}, {Ticker: "KXETH-1"}},
		{{Ticker: "kxbtc-2"}, {Ticker: "INX-1"}},
		{{Ticker: "KXBTC-3"}},
	}}
	svc := NewMarketService(ex, nil, 0, discard())

	got, err := svc.SearchMarkets(context.Background(), "kxbtc", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "KXBTC-1", got[0].Ticker)
	assert.Equal(t, "kxbtc-2", got[1].Ticker)
	assert.Equal(t, 2, ex.pageCalls, "stops once the limit is reached")

	ex.pageCalls = 0
	got, err = svc.SearchMarkets(context.Background(), "KXBTC", 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, ex.pageCalls)
}

func TestExchangePositionsFilteredToTicker(t *testing.T) {
	ex := &fakeExchange{positions: []domain.ExchangePosition{
		{Ticker: "KXA", Position: 2},
		{Ticker: "KXB", Position: 5},
	}}
	svc := NewMarketService(ex, nil, 0, discard())

	got, err := svc.GetExchangePositions(context.Background(), "KXB")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 5, got[0].Position)
}

func TestReferenceRejectsStaleOrMissing(t *testing.T) {
	cache := memory.NewPriceCache()
	prices := NewPriceService(cache, memory.NewEventBus(), discard())
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	prices.now = func() time.Time { return now }

	_, _, err := prices.Reference(context.Background(), "KXA", domain.SideYes, time.Second)
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	require.NoError(t, prices.HandleQuote(context.Background(), Quote{Ticker: "KXA", YesBid: 44, At: now.Add(-5 * time.Second)}))
	_, _, err = prices.Reference(context.Background(), "KXA", domain.SideYes, time.Second)
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	ref, _, err := prices.Reference(context.Background(), "KXA", domain.SideYes, 10*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 44, ref)
}
