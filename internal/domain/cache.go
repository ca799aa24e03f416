package domain

import (
	"context"
	"time"
)

// PriceCache keeps the last observed price per feed token.
type PriceCache interface {
	SetPrices(ctx context.Context, prices map[string]float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
