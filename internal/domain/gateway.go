package domain

import "context"

// MarketDataGateway reads market metadata and live prices from Polymarket.
type MarketDataGateway interface {
	GetMarketInfo(ctx context.Context, marketID string) (MarketInfo, error)
	GetEventMarkets(ctx context.Context, slug string) ([]MarketOption, error)
	// GetPricesBatch returns the SELL price per token. Tokens without a usable
	// price are omitted; upstream failures yield an empty map.
	GetPricesBatch(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}
