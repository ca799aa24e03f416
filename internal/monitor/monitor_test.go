package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/store/bunt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedGateway returns fixed prices; batches whose index is in failBatch
// return an error.
type scriptedGateway struct {
	mu        sync.Mutex
	prices    map[string]float64
	failBatch map[int]bool
	batches   [][]string
}

func (g *scriptedGateway) GetMarketInfo(context.Context, string) (domain.MarketInfo, error) {
	return domain.MarketInfo{}, errors.New("not used")
}

func (g *scriptedGateway) GetEventMarkets(context.Context, string) ([]domain.MarketOption, error) {
	return nil, errors.New("not used")
}

func (g *scriptedGateway) GetPricesBatch(_ context.Context, tokens []string) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := len(g.batches)
	g.batches = append(g.batches, append([]string(nil), tokens...))
	if g.failBatch[idx] {
		return nil, fmt.Errorf("batch %d: %w", idx, domain.ErrMarketAPI)
	}
	out := map[string]float64{}
	for _, tok := range tokens {
		if p, ok := g.prices[tok]; ok {
			out[tok] = p
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
}

func (n *recordingNotifier) SendAlert(_ context.Context, a domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

type recordingOps struct {
	events []string
}

func (o *recordingOps) Notify(_ context.Context, event, _, _ string) error {
	o.events = append(o.events, event)
	return nil
}

type memCache struct {
	prices map[string]float64
}

func (c *memCache) SetPrices(_ context.Context, prices map[string]float64, _ time.Time) error {
	for k, v := range prices {
		c.prices[k] = v
	}
	return nil
}

func (c *memCache) GetPrice(_ context.Context, id string) (float64, time.Time, error) {
	return c.prices[id], time.Time{}, nil
}

func (c *memCache) GetPrices(context.Context, []string) (map[string]float64, error) {
	return c.prices, nil
}

// brokenStore fails ListActive and optionally UpdateStatus.
type brokenStore struct {
	domain.TrackedMarketStore
	listErr   error
	statusErr error
}

func (s *brokenStore) ListActive(ctx context.Context) ([]domain.TrackedMarket, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.TrackedMarketStore.ListActive(ctx)
}

func (s *brokenStore) UpdateStatus(ctx context.Context, id int64, active bool) (domain.TrackedMarket, error) {
	if s.statusErr != nil {
		return domain.TrackedMarket{}, s.statusErr
	}
	return s.TrackedMarketStore.UpdateStatus(ctx, id, active)
}

func newStore(t *testing.T) *bunt.TrackedMarketStore {
	t.Helper()
	db, err := bunt.Memory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return bunt.NewTrackedMarketStore(db)
}

func track(t *testing.T, s domain.TrackedMarketStore, user int64, token string, target int, cond domain.Condition) domain.TrackedMarket {
	t.Helper()
	m, err := s.Create(context.Background(), domain.TrackedMarket{
		UserID:      user,
		MarketID:    "mkt-" + token,
		TokenID:     token,
		URL:         "https://polymarket.com/event/x",
		Title:       "Title " + token,
		TargetPrice: target,
		Condition:   cond,
		Active:      true,
	})
	require.NoError(t, err)
	return m
}

func newMonitor(store domain.TrackedMarketStore, gw domain.MarketDataGateway, n domain.AlertNotifier, batch int) *Monitor {
	return New(Config{BatchSize: batch, BatchTimeout: time.Second, Interval: time.Second},
		store, gw, n, nil, nil, testLogger())
}

func TestTickFiresAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := track(t, store, 1, "tok", 30, domain.ConditionLE)

	gw := &scriptedGateway{prices: map[string]float64{"tok": 0.25}}
	n := &recordingNotifier{}
	mon := newMonitor(store, gw, n, 20)

	report, err := mon.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	require.Len(t, n.alerts, 1)
	a := n.alerts[0]
	assert.Equal(t, m.ID, a.TrackedID)
	assert.Equal(t, int64(1), a.UserID)
	assert.InDelta(t, 25.0, a.PricePercent, 1e-9)
	assert.Equal(t, 30, a.TargetPrice)
	assert.Equal(t, domain.ConditionLE, a.Condition)

	stored, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	report, err = mon.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Fired)
	assert.Zero(t, report.Active)
	assert.Len(t, n.alerts, 1)
}

func TestTickBoundaryIsInclusive(t *testing.T) {
	store := newStore(t)
	track(t, store, 1, "down", 40, domain.ConditionLE)
	track(t, store, 1, "up", 60, domain.ConditionGE)
	track(t, store, 1, "quiet", 60, domain.ConditionGE)

	gw := &scriptedGateway{prices: map[string]float64{"down": 0.40, "up": 0.60, "quiet": 0.59}}
	n := &recordingNotifier{}

	report, err := newMonitor(store, gw, n, 20).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fired)
	assert.Equal(t, 3, report.Priced)
}

func TestTickSkipsFailedBatchAndContinues(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for i := 0; i < 25; i++ {
		track(t, store, int64(i), fmt.Sprintf("tok-%02d", i), 50, domain.ConditionGE)
	}
	prices := map[string]float64{}
	for i := 0; i < 25; i++ {
		prices[fmt.Sprintf("tok-%02d", i)] = 0.90
	}
	gw := &scriptedGateway{prices: prices, failBatch: map[int]bool{1: true}}
	n := &recordingNotifier{}

	report, err := newMonitor(store, gw, n, 10).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, 15, report.Priced)
	assert.Equal(t, 15, report.Fired)
	assert.Len(t, n.alerts, 15)

	for _, b := range gw.batches {
		assert.LessOrEqual(t, len(b), 10)
	}

	// markets in the failed batch stay active for the next tick
	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 10)
}

func TestTickDefaultBatchingFailedBatchFiresNextTick(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	prices := map[string]float64{}
	for i := 0; i < 25; i++ {
		tok := fmt.Sprintf("tok-%02d", i)
		track(t, store, int64(i), tok, 50, domain.ConditionLE)
		prices[tok] = 0.40
	}
	gw := &scriptedGateway{prices: prices, failBatch: map[int]bool{1: true}}
	n := &recordingNotifier{}
	mon := New(Config{}, store, gw, n, nil, nil, testLogger())

	report, err := mon.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, gw.batches, 2)
	assert.Len(t, gw.batches[0], 20)
	assert.Len(t, gw.batches[1], 5)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, 20, report.Fired)
	assert.Len(t, n.alerts, 20)

	report, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, gw.batches, 3)
	assert.Len(t, gw.batches[2], 5)
	assert.Equal(t, 5, report.Fired)
	assert.Len(t, n.alerts, 25)

	report, err = mon.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Active)
	assert.Zero(t, report.Fired)
	assert.Len(t, n.alerts, 25)

	seen := map[int64]bool{}
	for _, a := range n.alerts {
		assert.False(t, seen[a.TrackedID], "market %d alerted twice", a.TrackedID)
		seen[a.TrackedID] = true
	}
}

func TestTickDeduplicatesTokens(t *testing.T) {
	store := newStore(t)
	track(t, store, 1, "shared", 50, domain.ConditionGE)
	track(t, store, 2, "shared", 50, domain.ConditionGE)

	gw := &scriptedGateway{prices: map[string]float64{"shared": 0.55}}
	n := &recordingNotifier{}

	report, err := newMonitor(store, gw, n, 20).Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, gw.batches, 1)
	assert.Equal(t, []string{"shared"}, gw.batches[0])
	assert.Equal(t, 2, report.Fired)
}

func TestTickSkipsMarketsWithoutToken(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.Create(ctx, domain.TrackedMarket{
		UserID: 1, MarketID: "legacy", TargetPrice: 10, Condition: domain.ConditionGE, Active: true,
	})
	require.NoError(t, err)

	gw := &scriptedGateway{prices: map[string]float64{}}
	n := &recordingNotifier{}

	report, err := newMonitor(store, gw, n, 20).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Active)
	assert.Equal(t, 1, report.MissingToken)
	assert.Empty(t, gw.batches)
	assert.Empty(t, n.alerts)
}

func TestTickKeepsDeactivationWhenNotifyFails(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := track(t, store, 1, "tok", 50, domain.ConditionGE)

	gw := &scriptedGateway{prices: map[string]float64{"tok": 0.70}}
	n := &recordingNotifier{err: errors.New("blocked by user")}

	report, err := newMonitor(store, gw, n, 20).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, 1, report.NotifyFailed)

	stored, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestTickDoesNotNotifyWhenDeactivationFails(t *testing.T) {
	store := newStore(t)
	track(t, store, 1, "tok", 50, domain.ConditionGE)
	broken := &brokenStore{TrackedMarketStore: store, statusErr: errors.New("disk full")}

	gw := &scriptedGateway{prices: map[string]float64{"tok": 0.70}}
	n := &recordingNotifier{}

	report, err := newMonitor(broken, gw, n, 20).Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Fired)
	assert.Equal(t, 1, report.DeactivateFailed)
	assert.Empty(t, n.alerts)
}

func TestTickStoreOutage(t *testing.T) {
	broken := &brokenStore{TrackedMarketStore: newStore(t), listErr: errors.New("connection refused")}
	ops := &recordingOps{}
	mon := New(Config{}, broken, &scriptedGateway{}, &recordingNotifier{}, nil, ops, testLogger())

	_, err := mon.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, []string{"tick_failed"}, ops.events)

	_, ok := mon.LastReport()
	assert.False(t, ok)
}

func TestTickWritesPriceCache(t *testing.T) {
	store := newStore(t)
	track(t, store, 1, "tok", 90, domain.ConditionGE)
	cache := &memCache{prices: map[string]float64{}}

	mon := New(Config{}, store, &scriptedGateway{prices: map[string]float64{"tok": 0.33}},
		&recordingNotifier{}, cache, nil, testLogger())
	report, err := mon.Tick(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.33, cache.prices["tok"], 1e-9)

	last, ok := mon.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
	assert.NotEmpty(t, last.RunID)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newStore(t)
	track(t, store, 1, "tok", 50, domain.ConditionGE)
	n := &recordingNotifier{}
	mon := New(Config{Interval: 10 * time.Millisecond}, store,
		&scriptedGateway{prices: map[string]float64{"tok": 0.9}}, n, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := mon.LastReport()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Len(t, n.alerts, 1)
}
