// Package session holds the in-memory position ledger and trade journal for
// one trading session.
package session

import (
	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/shopspring/decimal"
)

// PositionState is the local view of holdings on one side of one market.
// The average price is the exact rational Cost/Count, so a run of buys
// lands on the same average whatever order the fills arrive in.
type PositionState struct {
	Count int64
	Cost  decimal.Decimal
}

// AvgPrice returns the weighted average entry price in cents.
func (s PositionState) AvgPrice() decimal.Decimal {
	if s.Count == 0 {
		return decimal.Zero
	}
	return s.Cost.DivRound(decimal.NewFromInt(s.Count), 8)
}

// Apply folds one fill into s. A buy adds its notional to the cost basis; a
// sell reduces the count, never below zero, keeping the average unchanged.
func Apply(s PositionState, action domain.Action, count, priceCents int64) PositionState {
	if count <= 0 {
		return s
	}
	switch action {
	case domain.ActionBuy:
		return PositionState{
			Count: s.Count + count,
			Cost:  s.Cost.Add(decimal.NewFromInt(priceCents).Mul(decimal.NewFromInt(count))),
		}
	case domain.ActionSell:
		sold := min(s.Count, count)
		remaining := s.Count - sold
		if remaining == 0 {
			return PositionState{}
		}
		return PositionState{
			Count: remaining,
			Cost:  s.Cost.Mul(decimal.NewFromInt(remaining)).Div(decimal.NewFromInt(s.Count)),
		}
	}
	return s
}

// Valuation is a mark-to-market of a position, in cents.
type Valuation struct {
	Cost  decimal.Decimal `json:"cost_cents"`
	Value decimal.Decimal `json:"value_cents"`
	PnL   decimal.Decimal `json:"pnl_cents"`
}

// MarkToMarket values s at the given price.
func MarkToMarket(s PositionState, priceCents int64) Valuation {
	value := decimal.NewFromInt(priceCents).Mul(decimal.NewFromInt(s.Count))
	return Valuation{Cost: s.Cost, Value: value, PnL: value.Sub(s.Cost)}
}

// PositionKey identifies a ledger entry.
type PositionKey struct {
	Ticker string
	Side   domain.Side
}

// Position is the exported form of one ledger entry.
type Position struct {
	Ticker        string          `json:"ticker"`
	Side          domain.Side     `json:"side"`
	Count         int64           `json:"count"`
	AvgPriceCents decimal.Decimal `json:"avg_price_cents"`
	CostCents     decimal.Decimal `json:"cost_cents"`
}

func newPosition(k PositionKey, s PositionState) Position {
	return Position{
		Ticker:        k.Ticker,
		Side:          k.Side,
		Count:         s.Count,
		AvgPriceCents: s.AvgPrice(),
		CostCents:     s.Cost,
	}
}
