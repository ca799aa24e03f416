package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/store/bunt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway serves canned market info and records calls.
type fakeGateway struct {
	mu      sync.Mutex
	infos   map[string]domain.MarketInfo
	infoErr error
	events  map[string][]domain.MarketOption
	calls   int
}

func (g *fakeGateway) GetMarketInfo(_ context.Context, marketID string) (domain.MarketInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.infoErr != nil {
		return domain.MarketInfo{}, g.infoErr
	}
	info, ok := g.infos[marketID]
	if !ok {
		return domain.MarketInfo{}, domain.ErrMarketAPI
	}
	return info, nil
}

func (g *fakeGateway) GetEventMarkets(_ context.Context, slug string) ([]domain.MarketOption, error) {
	opts, ok := g.events[slug]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return opts, nil
}

func (g *fakeGateway) GetPricesBatch(context.Context, []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

type fakePriceCache struct {
	prices map[string]float64
	err    error
}

func (c *fakePriceCache) SetPrices(context.Context, map[string]float64, time.Time) error {
	return nil
}

func (c *fakePriceCache) GetPrice(_ context.Context, id string) (float64, time.Time, error) {
	p, ok := c.prices[id]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (c *fakePriceCache) GetPrices(_ context.Context, ids []string) (map[string]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := map[string]float64{}
	for _, id := range ids {
		if p, ok := c.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newBuntStores(t *testing.T) (*bunt.TrackedMarketStore, *bunt.UserStore) {
	t.Helper()
	db, err := bunt.Memory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return bunt.NewTrackedMarketStore(db), bunt.NewUserStore(db)
}
