package domain

import (
	"context"
	"time"
)

// PriceCache holds the latest observed best bid per ticker and side. It is
// the out-of-band reference-price channel the buy path reads from.
type PriceCache interface {
	SetPrice(ctx context.Context, ticker string, side Side, cents int64, ts time.Time) error
	GetPrice(ctx context.Context, ticker string, side Side) (int64, time.Time, error)
}

// EventBus publishes engine events for dashboards and other observers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Event channels published by the engine.
const (
	ChannelTrades   = "trades"
	ChannelWatchdog = "watchdog"
	ChannelPrices   = "prices"
)
