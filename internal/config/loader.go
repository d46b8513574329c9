package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the built-in defaults, loads .env if
// present and applies environment overrides. A missing file is not an
// error. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from LATARB_* variables that are
// set and non-empty. The bare KALSHI_* names are accepted for credentials so
// an existing .env keeps working; the LATARB_ form wins when both are set.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "KALSHI_API_BASE")
	setStr(&cfg.Kalshi.Email, "KALSHI_EMAIL")
	setStr(&cfg.Kalshi.Password, "KALSHI_PASSWORD")
	setStr(&cfg.Kalshi.BaseURL, "LATARB_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WSURL, "LATARB_KALSHI_WS_URL")
	setStr(&cfg.Kalshi.KeyID, "LATARB_KALSHI_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKeyPath, "LATARB_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "LATARB_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "LATARB_KALSHI_KEY_PASSWORD")
	setStr(&cfg.Kalshi.Email, "LATARB_KALSHI_EMAIL")
	setStr(&cfg.Kalshi.Password, "LATARB_KALSHI_PASSWORD")
	setDuration(&cfg.Kalshi.Timeout, "LATARB_KALSHI_TIMEOUT")

	// ── Execution ──
	setStr(&cfg.Execution.DefaultTicker, "LATARB_EXECUTION_DEFAULT_TICKER")
	setInt64(&cfg.Execution.BuyBufferCents, "LATARB_EXECUTION_BUY_BUFFER_CENTS")
	setDuration(&cfg.Execution.SlowThreshold, "LATARB_EXECUTION_SLOW_THRESHOLD")
	setDuration(&cfg.Execution.CancelDelay, "LATARB_EXECUTION_CANCEL_DELAY")
	setDuration(&cfg.Execution.CancelTimeout, "LATARB_EXECUTION_CANCEL_TIMEOUT")
	setInt64(&cfg.Execution.LiquidityFloor, "LATARB_EXECUTION_LIQUIDITY_FLOOR")
	setInt(&cfg.Execution.RecentTrades, "LATARB_EXECUTION_RECENT_TRADES")
	setStr(&cfg.Execution.ClientOrderPrefix, "LATARB_EXECUTION_CLIENT_ORDER_PREFIX")
	setDuration(&cfg.Execution.DedupWindow, "LATARB_EXECUTION_DEDUP_WINDOW")
	setDuration(&cfg.Execution.ReferenceMaxAge, "LATARB_EXECUTION_REFERENCE_MAX_AGE")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "LATARB_FEED_ENABLED")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LATARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LATARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LATARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LATARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LATARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LATARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LATARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LATARB_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.PriceTTL, "LATARB_REDIS_PRICE_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LATARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LATARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LATARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LATARB_SERVER_API_KEY")
	setBool(&cfg.Server.Metrics, "LATARB_SERVER_METRICS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LATARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LATARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LATARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LATARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LATARB_MODE")
	setStr(&cfg.LogLevel, "LATARB_LOG_LEVEL")
}

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setDuration(dst *Duration, key string) {
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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
