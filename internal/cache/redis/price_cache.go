package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each side of a
// market lives at "{prefix}price:{ticker}:{side}" with fields "cents" and
// "ts" (Unix nanoseconds) and expires after ttl without updates.
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// keeps entries forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, ttl: ttl}
}

func (pc *PriceCache) priceKey(ticker string, side domain.Side) string {
	return pc.c.key("price", ticker, string(side))
}

// SetPrice stores the latest best bid for ticker/side.
func (pc *PriceCache) SetPrice(ctx context.Context, ticker string, side domain.Side, cents int64, ts time.Time) error {
	key := pc.priceKey(ticker, side)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"cents": strconv.FormatInt(cents, 10),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", ticker, side, err)
	}
	return nil
}

// GetPrice returns the latest best bid for ticker/side or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, ticker string, side domain.Side) (int64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.priceKey(ticker, side)).Result()
	if err != nil && err != redis.Nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s/%s: %w", ticker, side, err)
	}
	centsStr, okC := vals["cents"]
	tsStr, okT := vals["ts"]
	if !okC || !okT {
		return 0, time.Time{}, domain.ErrNotFound
	}

	cents, err := strconv.ParseInt(centsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s/%s: %w", ticker, side, err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s/%s: %w", ticker, side, err)
	}
	return cents, time.Unix(0, tsNano).UTC(), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
