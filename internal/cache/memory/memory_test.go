package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCacheKeepsNewest(t *testing.T) {
	c := NewPriceCache()
	ctx := context.Background()
	now := time.Now()

	_, _, err := c.GetPrice(ctx, "KXA", domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SetPrice(ctx, "KXA", domain.SideYes, 50, now))
	require.NoError(t, c.SetPrice(ctx, "KXA", domain.SideYes, 40, now.Add(-time.Second)))
	cents, ts, err := c.GetPrice(ctx, "KXA", domain.SideYes)
	require.NoError(t, err)
	assert.EqualValues(t, 50, cents, "older update is ignored")
	assert.True(t, now.Equal(ts))
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := bus.Subscribe(ctx, domain.ChannelTrades)
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, domain.ChannelTrades)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte("x")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelWatchdog, []byte("ignored")))
	assert.Equal(t, []byte("x"), <-a)
	assert.Equal(t, []byte("x"), <-b)

	cancel()
	_, open := <-a
	for open {
		_, open = <-a
	}
}
