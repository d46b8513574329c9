package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/latencyarb/internal/cache/memory"
	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
	"github.com/alanyoungcy/latencyarb/internal/service"
)

type fakeSource struct {
	mu      sync.Mutex
	handler kalshi.TickerHandler
	tickers []string
	emit    []kalshi.TickerUpdate
}

func (s *fakeSource) OnTicker(h kalshi.TickerHandler) { s.handler = h }

func (s *fakeSource) SetTickers(t []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers = t
	return nil
}

func (s *fakeSource) Run(ctx context.Context) error {
	for _, u := range s.emit {
		s.handler(u)
	}
	<-ctx.Done()
	return nil
}

func TestFeedStoresQuotes(t *testing.T) {
	at := time.Now().UTC()
	src := &fakeSource{emit: []kalshi.TickerUpdate{{Ticker: "KXA", YesBid: 41, NoBid: 57, Received: at}}}
	cache := memory.NewPriceCache()
	prices := service.NewPriceService(cache, memory.NewEventBus(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	f := NewTickerFeed(src, prices, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, _, err := cache.GetPrice(context.Background(), "KXA", domain.SideNo)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	yes, _, err := cache.GetPrice(context.Background(), "KXA", domain.SideYes)
	require.NoError(t, err)
	assert.EqualValues(t, 41, yes)

	cancel()
	require.NoError(t, <-done)
}

func TestTrackSubscribes(t *testing.T) {
	src := &fakeSource{}
	f := NewTickerFeed(src, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.Track("")
	assert.Nil(t, src.tickers)
	f.Track("KXB")
	assert.Equal(t, []string{"KXB"}, src.tickers)
}
