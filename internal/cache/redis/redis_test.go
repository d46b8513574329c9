package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to LATARB_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("LATARB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LATARB_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, KeyPrefix: "latarb-test-" + uuid.NewString() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: "latarb:"}
	assert.Equal(t, "latarb:price:KXA:yes", c.key("price", "KXA", "yes"))
	assert.Equal(t, "latarb:trades", c.key(domain.ChannelTrades))
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	pc := NewPriceCache(c, time.Minute)
	ctx := context.Background()

	_, _, err := pc.GetPrice(ctx, "KXA", domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ts := time.Date(2026, 5, 1, 10, 0, 0, 123, time.UTC)
	require.NoError(t, pc.SetPrice(ctx, "KXA", domain.SideYes, 61, ts))
	cents, got, err := pc.GetPrice(ctx, "KXA", domain.SideYes)
	require.NoError(t, err)
	assert.EqualValues(t, 61, cents)
	assert.True(t, ts.Equal(got))

	_, _, err = pc.GetPrice(ctx, "KXA", domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventBusPublishSubscribe(t *testing.T) {
	c := newTestClient(t)
	bus := NewEventBus(c)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelTrades)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte(`{"id":"t1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":"t1"}`, string(msg))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
