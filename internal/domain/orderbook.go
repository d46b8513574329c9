package domain

import "time"

// PriceLevel is a single price+quantity entry in an orderbook side.
type PriceLevel struct {
	PriceCents int64 `json:"price_cents"`
	Quantity   int64 `json:"quantity"`
}

// MarketSnapshot is an immutable view of both bid sides of a market. Levels
// are sorted ascending by price, so the best bid is the last element.
type MarketSnapshot struct {
	Ticker    string        `json:"ticker"`
	Yes       []PriceLevel  `json:"yes"`
	No        []PriceLevel  `json:"no"`
	FetchedAt time.Time     `json:"fetched_at"`
	Latency   time.Duration `json:"latency"`
}

// Levels returns the bid levels for the given side.
func (s MarketSnapshot) Levels(side Side) []PriceLevel {
	if side == SideNo {
		return s.No
	}
	return s.Yes
}

// BestBid returns the highest bid on side, or false when the side is empty.
func (s MarketSnapshot) BestBid(side Side) (int64, bool) {
	levels := s.Levels(side)
	if len(levels) == 0 {
		return 0, false
	}
	return levels[len(levels)-1].PriceCents, true
}

// Depth sums the resting quantity on side.
func (s MarketSnapshot) Depth(side Side) int64 {
	var total int64
	for _, lvl := range s.Levels(side) {
		total += lvl.Quantity
	}
	return total
}

// Depth summarises available liquidity against the configured floor.
type Depth struct {
	Ticker        string        `json:"ticker"`
	YesDepth      int64         `json:"yes_depth"`
	NoDepth       int64         `json:"no_depth"`
	SufficientYes bool          `json:"sufficient_yes"`
	SufficientNo  bool          `json:"sufficient_no"`
	Latency       time.Duration `json:"latency"`
}
