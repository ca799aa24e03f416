package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyalert/internal/bot"
	"github.com/alanyoungcy/polyalert/internal/monitor"
	"github.com/alanyoungcy/polyalert/internal/server"
	"github.com/alanyoungcy/polyalert/internal/server/handler"
	"github.com/alanyoungcy/polyalert/internal/service"
)

// FullMode runs the monitor, the Telegram front-end and the ops API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	markets := a.marketService(deps)

	mon := a.newMonitor(deps)
	g.Go(func() error {
		return mon.Run(ctx)
	})

	b := a.newBot(deps, markets)
	g.Go(func() error {
		return b.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, markets, mon)

	return g.Wait()
}

// MonitorMode runs only the price monitor (plus the ops API). Alerts are
// still delivered through Telegram but no updates are polled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	mon := a.newMonitor(deps)
	g.Go(func() error {
		return mon.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, a.marketService(deps), mon)

	return g.Wait()
}

// BotMode runs only the Telegram front-end (plus the ops API), for
// deployments that run the monitor in a separate process.
func (a *App) BotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bot mode")

	g, ctx := errgroup.WithContext(ctx)
	markets := a.marketService(deps)

	b := a.newBot(deps, markets)
	g.Go(func() error {
		return b.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, markets, nil)

	return g.Wait()
}

func (a *App) marketService(deps *Dependencies) *service.MarketService {
	return service.NewMarketService(deps.Markets, deps.Gateway, deps.Prices, a.logger)
}

func (a *App) newMonitor(deps *Dependencies) *monitor.Monitor {
	return monitor.New(monitor.Config{
		Interval:     a.cfg.Monitor.Interval.Duration,
		BatchSize:    a.cfg.Monitor.BatchSize,
		BatchTimeout: a.cfg.Monitor.BatchTimeout.Duration,
	}, deps.Markets, deps.Gateway, deps.Alerts, deps.Prices, deps.Notifier, a.logger)
}

func (a *App) newBot(deps *Dependencies, markets *service.MarketService) *bot.Bot {
	b := bot.New(deps.Telegram, markets, service.NewUserService(deps.Users), deps.Limiter, bot.Config{
		CommandLimit:   a.cfg.Telegram.CommandLimit,
		CommandWindow:  a.cfg.Telegram.CommandEvery.Duration,
		RequestTimeout: 2 * a.cfg.Polymarket.RequestTimeout.Duration,
	}, a.logger)
	b.Register()
	return b
}

// startHTTPServer adds the ops API goroutines to the given errgroup when the
// server is enabled. mon may be nil.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	markets *service.MarketService,
	mon *monitor.Monitor,
) {
	if !a.cfg.Server.Enabled {
		return
	}

	var reporter handler.TickReporter
	if mon != nil {
		reporter = mon
	}

	srv := server.NewServer(server.Config{
		Port:       a.cfg.Server.Port,
		APIKey:     a.cfg.Server.APIKey,
		Limiter:    deps.Limiter,
		RateLimit:  a.cfg.Telegram.CommandLimit * 3,
		RateWindow: a.cfg.Telegram.CommandEvery.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Health, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, reporter),
		Markets: handler.NewMarketHandler(markets, a.logger),
	}, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
