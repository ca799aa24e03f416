// Package monitor runs the periodic price check. Each tick loads the active
// tracked markets, fetches their prices in batches and fires every trigger
// whose target has been crossed. A fired market is deactivated before its
// owner is notified, so an alert is delivered at most once per activation.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/metrics"
	"github.com/alanyoungcy/polyalert/internal/notify"
	"github.com/alanyoungcy/polyalert/internal/trigger"
)

// OpsNotifier receives operational events. *notify.Notifier satisfies it.
type OpsNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the loop parameters.
type Config struct {
	Interval     time.Duration
	BatchSize    int
	BatchTimeout time.Duration
}

// TickReport summarises one tick.
type TickReport struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Active           int           `json:"active"`
	MissingToken     int           `json:"missing_token"`
	Tokens           int           `json:"tokens"`
	Batches          int           `json:"batches"`
	FailedBatches    int           `json:"failed_batches"`
	Priced           int           `json:"priced"`
	Fired            int           `json:"fired"`
	DeactivateFailed int           `json:"deactivate_failed"`
	NotifyFailed     int           `json:"notify_failed"`
	Error            string        `json:"error,omitempty"`
}

// Monitor checks tracked markets against live prices.
type Monitor struct {
	cfg      Config
	markets  domain.TrackedMarketStore
	gateway  domain.MarketDataGateway
	notifier domain.AlertNotifier
	prices   domain.PriceCache
	ops      OpsNotifier
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last *TickReport
}

// New creates a Monitor. prices and ops may be nil.
func New(
	cfg Config,
	markets domain.TrackedMarketStore,
	gateway domain.MarketDataGateway,
	notifier domain.AlertNotifier,
	prices domain.PriceCache,
	ops OpsNotifier,
	logger *slog.Logger,
) *Monitor {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 20
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Second
	}
	return &Monitor{
		cfg:      cfg,
		markets:  markets,
		gateway:  gateway,
		notifier: notifier,
		prices:   prices,
		ops:      ops,
		logger:   logger.With(slog.String("component", "monitor")),
		now:      time.Now,
	}
}

// Run ticks every configured interval until ctx is cancelled. A tick that
// outlasts the interval delays the next one instead of overlapping it.
func (m *Monitor) Run(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(m.cfg.Interval).SingletonMode().Do(func() {
		if _, err := m.Tick(ctx); err != nil && ctx.Err() == nil {
			m.logger.ErrorContext(ctx, "tick failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("monitor: schedule tick: %w", err)
	}

	m.logger.InfoContext(ctx, "monitor started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Int("batch_size", m.cfg.BatchSize),
	)
	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	m.logger.Info("monitor stopped")
	return nil
}

// LastReport returns the report of the most recent completed tick.
func (m *Monitor) LastReport() (TickReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return TickReport{}, false
	}
	return *m.last, true
}

// Tick performs one monitoring cycle. The only error returned is a failure to
// load the active markets; price and notification failures are logged and
// counted in the report.
func (m *Monitor) Tick(ctx context.Context) (TickReport, error) {
	report := TickReport{RunID: uuid.NewString(), StartedAt: m.now()}
	logger := m.logger.With(slog.String("run_id", report.RunID))
	start := time.Now()

	active, err := m.markets.ListActive(ctx)
	if err != nil {
		report.Error = err.Error()
		m.finish(&report, start, "store_error")
		if opsErr := m.notifyOps(ctx, "Monitor tick failed", err.Error()); opsErr != nil {
			logger.WarnContext(ctx, "ops notify failed", slog.String("error", opsErr.Error()))
		}
		return report, fmt.Errorf("monitor: list active markets: %w", err)
	}
	report.Active = len(active)

	monitorable := lo.Filter(active, func(tm domain.TrackedMarket, _ int) bool {
		if !tm.HasToken() {
			logger.WarnContext(ctx, "tracked market has no token, skipping",
				slog.Int64("tracked_id", tm.ID),
				slog.String("market_id", tm.MarketID),
			)
			return false
		}
		return true
	})
	report.MissingToken = len(active) - len(monitorable)
	metrics.ActiveMarkets.Set(float64(report.Active))
	metrics.MissingTokenMarkets.Set(float64(report.MissingToken))

	if len(monitorable) == 0 {
		m.finish(&report, start, "ok")
		return report, nil
	}

	tokens := lo.Uniq(lo.Map(monitorable, func(tm domain.TrackedMarket, _ int) string {
		return tm.TokenID
	}))
	report.Tokens = len(tokens)
	prices := m.fetchPrices(ctx, logger, tokens, &report)
	report.Priced = len(prices)

	if m.prices != nil && len(prices) > 0 {
		if err := m.prices.SetPrices(ctx, prices, report.StartedAt); err != nil {
			logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
		}
	}

	for _, tm := range monitorable {
		price, ok := prices[tm.TokenID]
		if !ok {
			continue
		}
		percent := trigger.ToPercent(price)
		if !trigger.ShouldFire(percent, tm.TargetPrice, tm.Condition) {
			continue
		}
		if m.fire(ctx, logger, tm, percent, &report) {
			report.Fired++
		}
	}

	m.finish(&report, start, "ok")
	logger.DebugContext(ctx, "tick complete",
		slog.Int("active", report.Active),
		slog.Int("priced", report.Priced),
		slog.Int("fired", report.Fired),
		slog.Int("failed_batches", report.FailedBatches),
		slog.Duration("took", report.Duration),
	)
	return report, nil
}

// fetchPrices requests prices batch by batch. A failed batch contributes no
// prices; the remaining batches still run.
func (m *Monitor) fetchPrices(ctx context.Context, logger *slog.Logger, tokens []string, report *TickReport) map[string]float64 {
	out := make(map[string]float64, len(tokens))
	for i, batch := range lo.Chunk(tokens, m.cfg.BatchSize) {
		if ctx.Err() != nil {
			break
		}
		report.Batches++

		bctx, cancel := context.WithTimeout(ctx, m.cfg.BatchTimeout)
		prices, err := m.gateway.GetPricesBatch(bctx, batch)
		cancel()
		if err != nil {
			report.FailedBatches++
			metrics.BatchesTotal.WithLabelValues("error").Inc()
			logger.ErrorContext(ctx, "price batch failed",
				slog.Int("batch", i),
				slog.Int("tokens", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.BatchesTotal.WithLabelValues("ok").Inc()
		for token, p := range prices {
			out[token] = p
		}
	}
	return out
}

// fire deactivates the market and then notifies its owner. It reports
// whether the market was deactivated. A market that cannot be deactivated is
// not announced; it will be re-evaluated on the next tick.
func (m *Monitor) fire(ctx context.Context, logger *slog.Logger, tm domain.TrackedMarket, percent float64, report *TickReport) bool {
	attrs := []any{
		slog.Int64("tracked_id", tm.ID),
		slog.Int64("user_id", tm.UserID),
		slog.String("market_id", tm.MarketID),
		slog.Float64("price", percent),
		slog.Int("target", tm.TargetPrice),
		slog.String("condition", string(tm.Condition)),
	}

	if _, err := m.markets.UpdateStatus(ctx, tm.ID, false); err != nil {
		report.DeactivateFailed++
		logger.ErrorContext(ctx, "deactivate fired market failed",
			append(attrs, slog.String("error", err.Error()))...)
		return false
	}
	metrics.AlertsFiredTotal.WithLabelValues(string(tm.Condition)).Inc()
	logger.InfoContext(ctx, "alert fired", attrs...)

	alert := domain.Alert{
		TrackedID:    tm.ID,
		UserID:       tm.UserID,
		MarketID:     tm.MarketID,
		Title:        tm.DisplayTitle(),
		URL:          tm.URL,
		PricePercent: percent,
		TargetPrice:  tm.TargetPrice,
		Condition:    tm.Condition,
		FiredAt:      m.now(),
	}
	if err := m.notifier.SendAlert(ctx, alert); err != nil {
		report.NotifyFailed++
		logger.ErrorContext(ctx, "alert notification failed",
			append(attrs, slog.String("error", err.Error()))...)
	}
	return true
}

func (m *Monitor) notifyOps(ctx context.Context, title, message string) error {
	if m.ops == nil {
		return nil
	}
	return m.ops.Notify(ctx, notify.EventTickFailed, title, message)
}

// finish stamps the duration, records tick metrics and, for completed ticks,
// publishes the report.
func (m *Monitor) finish(r *TickReport, start time.Time, outcome string) {
	r.Duration = time.Since(start)
	metrics.TickDuration.Observe(r.Duration.Seconds())
	metrics.TicksTotal.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last := *r
	m.last = &last
}
