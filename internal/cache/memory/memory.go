// Package memory provides process-local implementations of the price cache
// and event bus for running without Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

type priceKey struct {
	ticker string
	side   domain.Side
}

type priceEntry struct {
	cents int64
	ts    time.Time
}

// PriceCache is a mutex-guarded map of the latest best bids.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[priceKey]priceEntry
}

// NewPriceCache returns an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[priceKey]priceEntry)}
}

func (c *PriceCache) SetPrice(_ context.Context, ticker string, side domain.Side, cents int64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := priceKey{ticker, side}
	if prev, ok := c.prices[k]; ok && prev.ts.After(ts) {
		return nil
	}
	c.prices[k] = priceEntry{cents: cents, ts: ts}
	return nil
}

func (c *PriceCache) GetPrice(_ context.Context, ticker string, side domain.Side) (int64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.prices[priceKey{ticker, side}]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return e.cents, e.ts, nil
}

// EventBus fans published payloads out to in-process subscribers. Slow
// subscribers drop messages rather than block publishers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

// NewEventBus returns an EventBus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string]map[chan []byte]struct{})}
}

func (b *EventBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads for channel, closed when ctx ends.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

var (
	_ domain.PriceCache = (*PriceCache)(nil)
	_ domain.EventBus   = (*EventBus)(nil)
)
