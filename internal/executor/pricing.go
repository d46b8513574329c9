package executor

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// DefaultBuyBufferCents is added to the reference price so a buy crosses the
// spread immediately.
const DefaultBuyBufferCents = 2

// BuyPrice returns the aggressive limit price for a buy: the reference plus
// buffer, capped at 99 and clamped into the tradable range.
func BuyPrice(referenceCents, bufferCents int64) int64 {
	return domain.ClampPrice(min(domain.MaxPriceCents, referenceCents+bufferCents))
}

// SellPrice returns the best bid on side of a fresh snapshot. An empty side
// cannot be sold into.
func SellPrice(snap domain.MarketSnapshot, side domain.Side) (int64, error) {
	best, ok := snap.BestBid(side)
	if !ok {
		return 0, fmt.Errorf("%w: no %s bids on %s", domain.ErrPrecondition, side, snap.Ticker)
	}
	return domain.ClampPrice(best), nil
}

// ClientOrderIDs issues "<prefix>_<unix-ms>" ids that are strictly
// increasing within the process, even for orders placed in the same
// millisecond.
type ClientOrderIDs struct {
	prefix string
	last   atomic.Int64
	now    func() time.Time
}

// NewClientOrderIDs creates a generator with the given prefix.
func NewClientOrderIDs(prefix string) *ClientOrderIDs {
	if prefix == "" {
		prefix = "latarb"
	}
	return &ClientOrderIDs{prefix: prefix, now: time.Now}
}

// Next returns the next id.
func (g *ClientOrderIDs) Next() string {
	for {
		prev := g.last.Load()
		next := max(g.now().UnixMilli(), prev+1)
		if g.last.CompareAndSwap(prev, next) {
			return g.prefix + "_" + strconv.FormatInt(next, 10)
		}
	}
}
