package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

func TestBuyPrice(t *testing.T) {
	tests := []struct {
		ref, buf, want int64
	}{
		{97, 2, 99},
		{98, 2, 99},
		{50, 2, 52},
		{0, 0, 1},
		{-5, 2, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BuyPrice(tt.ref, tt.buf), "ref=%d buf=%d", tt.ref, tt.buf)
	}
}

func TestSellPrice(t *testing.T) {
	snap := domain.MarketSnapshot{Ticker: "KXA", Yes: []domain.PriceLevel{
		{PriceCents: 1, Quantity: 50},
		{PriceCents: 45, Quantity: 20},
		{PriceCents: 60, Quantity: 10},
	}}
	got, err := SellPrice(snap, domain.SideYes)
	require.NoError(t, err)
	assert.EqualValues(t, 60, got)

	_, err = SellPrice(snap, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestClientOrderIDsAreMonotonic(t *testing.T) {
	g := NewClientOrderIDs("t")
	fixed := time.UnixMilli(1_700_000_000_000)
	g.now = func() time.Time { return fixed }

	assert.Equal(t, "t_1700000000000", g.Next())
	assert.Equal(t, "t_1700000000001", g.Next())
	assert.Equal(t, "t_1700000000002", g.Next())

	g.now = func() time.Time { return fixed.Add(time.Second) }
	assert.Equal(t, "t_1700000001000", g.Next())
}

func TestDedupWindow(t *testing.T) {
	d := NewDedup(time.Second)
	now := time.Unix(100, 0)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate(""))
	assert.False(t, d.IsDuplicate(""))

	now = now.Add(time.Second)
	assert.False(t, d.IsDuplicate("a"))

	d.Forget("a")
	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
}
