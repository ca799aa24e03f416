package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYALERT_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus the
// environment are enough for container deployments. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYALERT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYALERT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYALERT_POLYMARKET_GAMMA_HOST")
	setDuration(&cfg.Polymarket.RequestTimeout, "POLYALERT_POLYMARKET_REQUEST_TIMEOUT")

	// ── Telegram ──
	setStr(&cfg.Telegram.Token, "POLYALERT_TELEGRAM_TOKEN")
	setStr(&cfg.Telegram.Token, "BOT_TOKEN") // compatibility alias
	setDuration(&cfg.Telegram.PollTimeout, "POLYALERT_TELEGRAM_POLL_TIMEOUT")
	setInt(&cfg.Telegram.CommandLimit, "POLYALERT_TELEGRAM_COMMAND_LIMIT")
	setDuration(&cfg.Telegram.CommandEvery, "POLYALERT_TELEGRAM_COMMAND_WINDOW")

	// ── Database ──
	setStr(&cfg.Database.Driver, "POLYALERT_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "POLYALERT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "POLYALERT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POLYALERT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POLYALERT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "POLYALERT_DATABASE_USER")
	setStr(&cfg.Database.Password, "POLYALERT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POLYALERT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "POLYALERT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POLYALERT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POLYALERT_DATABASE_RUN_MIGRATIONS")
	setStr(&cfg.Database.BuntPath, "POLYALERT_DATABASE_BUNT_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYALERT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYALERT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYALERT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYALERT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYALERT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYALERT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYALERT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "POLYALERT_REDIS_PRICE_TTL")
	setStr(&cfg.Redis.KeyPrefix, "POLYALERT_REDIS_KEY_PREFIX")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "POLYALERT_MONITOR_INTERVAL")
	setInt(&cfg.Monitor.BatchSize, "POLYALERT_MONITOR_BATCH_SIZE")
	setDuration(&cfg.Monitor.BatchTimeout, "POLYALERT_MONITOR_BATCH_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYALERT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYALERT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYALERT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramChatID, "POLYALERT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYALERT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYALERT_NOTIFY_EVENTS")
	setInt(&cfg.Notify.MaxAttempts, "POLYALERT_NOTIFY_MAX_ATTEMPTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYALERT_MODE")
	setStr(&cfg.LogLevel, "POLYALERT_LOG_LEVEL")
	setStr(&cfg.Log.File, "POLYALERT_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
