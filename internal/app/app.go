// Package app owns the process lifecycle: it wires stores, caches, the
// Polymarket gateway, Telegram and notifications, then runs the goroutines
// of the configured mode until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/polyalert/internal/config"
)

// App is the root application object. Cleanup functions registered during
// Run are released in reverse order by Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
	once    sync.Once
}

type modeFunc func(*App, context.Context, *Dependencies) error

// modes maps config.Mode values to their runners.
var modes = map[string]modeFunc{
	"full":    (*App).FullMode,
	"monitor": (*App).MonitorMode,
	"bot":     (*App).BotMode,
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run wires dependencies and blocks in the configured mode until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	run, ok := modes[strings.ToLower(a.cfg.Mode)]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("database", a.cfg.Database.Driver),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("http", a.cfg.Server.Enabled),
		slog.Duration("interval", a.cfg.Monitor.Interval.Duration),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return run(a, ctx, deps)
}

// Close releases resources in reverse registration order. Only the first
// call has an effect.
func (a *App) Close() {
	a.once.Do(func() {
		a.logger.Info("shutting down application")
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
		a.closers = nil
	})
}
