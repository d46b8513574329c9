package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is one of the two complementary contracts of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ParseSide accepts "yes"/"no" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideYes:
		return SideYes, nil
	case SideNo:
		return SideNo, nil
	}
	return "", fmt.Errorf("%w: invalid side %q", ErrPrecondition, s)
}

// Action indicates whether this is a buy or sell.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ParseAction accepts "buy"/"sell" in any case.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	}
	return "", fmt.Errorf("%w: invalid action %q", ErrPrecondition, s)
}

// OrderStatus tracks the order lifecycle as reported by the exchange.
type OrderStatus string

const (
	OrderStatusResting  OrderStatus = "resting"
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusExecuted OrderStatus = "executed"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Resting reports whether the order can still be filled and therefore
// still be canceled.
func (s OrderStatus) Resting() bool {
	return s == OrderStatusResting || s == OrderStatusPending
}

const (
	MinPriceCents = 1
	MaxPriceCents = 99
)

// ClampPrice forces a price into the tradable [1,99] cent range.
func ClampPrice(cents int64) int64 {
	if cents < MinPriceCents {
		return MinPriceCents
	}
	if cents > MaxPriceCents {
		return MaxPriceCents
	}
	return cents
}

// Order is a limit order as acknowledged by the exchange.
type Order struct {
	OrderID        string      `json:"order_id"`
	ClientOrderID  string      `json:"client_order_id"`
	Ticker         string      `json:"ticker"`
	Side           Side        `json:"side"`
	Action         Action      `json:"action"`
	Count          int64       `json:"count"`
	PriceCents     int64       `json:"price_cents"`
	Status         OrderStatus `json:"status"`
	RemainingCount int64       `json:"remaining_count"`
	PlacedAt       time.Time   `json:"placed_at"`
}

// PendingOrder is a buy order the cancel watchdog is tracking.
type PendingOrder struct {
	OrderID  string    `json:"order_id"`
	Ticker   string    `json:"ticker"`
	Side     Side      `json:"side"`
	Action   Action    `json:"action"`
	PlacedAt time.Time `json:"placed_at"`
}
