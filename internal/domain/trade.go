package domain

import "time"

// TradeRecord is an append-only journal entry for one completed trade.
//
// Slippage is positive when the price moved against the trader: for buys it
// is executed - reference, for sells reference - executed.
type TradeRecord struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	Ticker              string    `json:"ticker"`
	Side                Side      `json:"side"`
	Action              Action    `json:"action"`
	Count               int64     `json:"count"`
	ExecutedPriceCents  int64     `json:"executed_price_cents"`
	ReferencePriceCents int64     `json:"reference_price_cents"`
	SlippageCents       int64     `json:"slippage_cents"`
	SlippageCostCents   int64     `json:"slippage_cost_cents"`
	LatencyMs           float64   `json:"latency_ms"`
	OrderID             string    `json:"order_id"`
}

// Slippage returns the signed slippage in cents for a fill.
func Slippage(action Action, executed, reference int64) int64 {
	if action == ActionSell {
		return reference - executed
	}
	return executed - reference
}

// Fill is what the position ledger consumes for one completed trade.
type Fill struct {
	Ticker     string
	Side       Side
	Action     Action
	Count      int64
	PriceCents int64
}
