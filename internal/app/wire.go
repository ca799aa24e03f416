package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/alanyoungcy/polyalert/internal/cache/redis"
	"github.com/alanyoungcy/polyalert/internal/config"
	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/notify"
	"github.com/alanyoungcy/polyalert/internal/platform/polymarket"
	"github.com/alanyoungcy/polyalert/internal/server/handler"
	"github.com/alanyoungcy/polyalert/internal/store/bunt"
	"github.com/alanyoungcy/polyalert/internal/store/postgres"
)

// Dependencies bundles every dependency that the application modes need. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Markets domain.TrackedMarketStore
	Users   domain.UserStore

	// Optional Redis-backed helpers; nil when redis is disabled.
	Prices  domain.PriceCache
	Limiter domain.RateLimiter

	Gateway  domain.MarketDataGateway
	Telegram *tb.Bot

	// Notifications
	Notifier *notify.Notifier
	Alerts   *notify.AlertSender

	// Health probes by dependency name.
	Health map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- Tracked-market store ---
	switch cfg.Database.Driver {
	case "buntdb":
		db, err := bunt.Open(cfg.Database.BuntPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: buntdb: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Markets = bunt.NewTrackedMarketStore(db)
		deps.Users = bunt.NewUserStore(db)
		deps.Health["database"] = db
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Markets = postgres.NewTrackedMarketStore(pool)
		deps.Users = postgres.NewUserStore(pool)
		deps.Health["database"] = pgClient
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Prices = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Health["redis"] = redisClient
	}

	// --- Polymarket ---
	deps.Gateway = polymarket.NewGateway(
		cfg.Polymarket.GammaHost,
		cfg.Polymarket.ClobHost,
		cfg.Polymarket.RequestTimeout.Duration,
		logger,
	)

	// --- Telegram ---
	bot, err := tb.NewBot(tb.Settings{
		Token:     cfg.Telegram.Token,
		Poller:    &tb.LongPoller{Timeout: cfg.Telegram.PollTimeout.Duration},
		ParseMode: tb.ModeHTML,
		Reporter: func(err error) {
			logger.Error("telegram poller error", slog.String("error", err.Error()))
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: telegram: %w", err)
	}
	deps.Telegram = bot

	// --- Notifications ---
	var senders []notify.Sender
	if chat := strings.TrimSpace(cfg.Notify.TelegramChatID); chat != "" {
		chatID, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: notify.telegram_chat_id %q: %w", chat, err)
		}
		senders = append(senders, notify.NewTelegramSender(bot, chatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerts = notify.NewAlertSender(bot, deps.Notifier, cfg.Notify.MaxAttempts, logger)

	return deps, cleanup, nil
}
