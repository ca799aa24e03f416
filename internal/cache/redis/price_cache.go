package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each token's last observed price is stored at "{prefix}price:{tokenID}" with fields
// "price" and "ts" (Unix nanoseconds). Entries expire after ttl so a token
// nobody tracks any more does not linger.
type PriceCache struct {
	c   *Client
	rdb *redis.Client
	ttl time.Duration
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// disables expiry.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, rdb: c.rdb, ttl: ttl}
}

func (pc *PriceCache) priceKey(tokenID string) string {
	return pc.c.key("price", tokenID)
}

// SetPrices stores every price in one pipeline, all stamped with ts.
func (pc *PriceCache) SetPrices(ctx context.Context, prices map[string]float64, ts time.Time) error {
	if len(prices) == 0 {
		return nil
	}

	stamp := strconv.FormatInt(ts.UnixNano(), 10)
	pipe := pc.rdb.Pipeline()
	for token, price := range prices {
		key := pc.priceKey(token)
		pipe.HSet(ctx, key, map[string]interface{}{
			"price": strconv.FormatFloat(price, 'f', -1, 64),
			"ts":    stamp,
		})
		if pc.ttl > 0 {
			pipe.Expire(ctx, key, pc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set prices: %w", err)
	}
	return nil
}

// GetPrice retrieves the last price and its timestamp for a token.
// It returns domain.ErrNotFound when nothing is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.priceKey(tokenID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", tokenID, err)
	}
	price, ts, ok, err := decodePrice(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", tokenID, err)
	}
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, ts, nil
}

// GetPrices retrieves the last prices for multiple tokens using a pipeline.
// Tokens without a usable entry are omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	if len(tokenIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokenIDs))
	for _, id := range tokenIDs {
		cmds[id] = pipe.HGetAll(ctx, pc.priceKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(tokenIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		price, _, ok, err := decodePrice(vals)
		if err != nil || !ok {
			continue
		}
		result[id] = price
	}
	return result, nil
}

// decodePrice parses a price hash. ok is false when the hash is empty or
// incomplete.
func decodePrice(vals map[string]string) (float64, time.Time, bool, error) {
	priceStr, hasPrice := vals["price"]
	tsStr, hasTS := vals["ts"]
	if !hasPrice || !hasTS {
		return 0, time.Time{}, false, nil
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("parse price: %w", err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("parse ts: %w", err)
	}
	return price, time.Unix(0, tsNano), true, nil
}
