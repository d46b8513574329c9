// Package config defines the latencyarb configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LATARB_* environment variables.
type Config struct {
	Kalshi    KalshiConfig    `toml:"kalshi"`
	Execution ExecutionConfig `toml:"execution"`
	Feed      FeedConfig      `toml:"feed"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// KalshiConfig holds exchange endpoints and credentials. Either a key id with
// a private key source, or an email and password, must be set.
type KalshiConfig struct {
	BaseURL          string   `toml:"base_url"`
	WSURL            string   `toml:"ws_url"`
	KeyID            string   `toml:"key_id"`
	PrivateKeyPath   string   `toml:"private_key_path"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	Email            string   `toml:"email"`
	Password         string   `toml:"password"`
	Timeout          Duration `toml:"timeout"`
}

// HasKey reports whether API-key credentials are configured.
func (k KalshiConfig) HasKey() bool {
	return k.KeyID != "" && (k.PrivateKeyPath != "" || k.EncryptedKeyPath != "")
}

// HasLogin reports whether legacy email/password credentials are configured.
func (k KalshiConfig) HasLogin() bool {
	return k.Email != "" && k.Password != ""
}

// ExecutionConfig tunes order pricing, the cancel watchdog and reporting.
type ExecutionConfig struct {
	DefaultTicker     string   `toml:"default_ticker"`
	BuyBufferCents    int64    `toml:"buy_buffer_cents"`
	SlowThreshold     Duration `toml:"slow_threshold"`
	CancelDelay       Duration `toml:"cancel_delay"`
	CancelTimeout     Duration `toml:"cancel_timeout"`
	LiquidityFloor    int64    `toml:"liquidity_floor"`
	RecentTrades      int      `toml:"recent_trades"`
	ClientOrderPrefix string   `toml:"client_order_prefix"`
	DedupWindow       Duration `toml:"dedup_window"`
	// ReferenceMaxAge bounds how old a cached price may be when a buy
	// request omits its reference price. Zero disables the fallback.
	ReferenceMaxAge Duration `toml:"reference_max_age"`
}

// FeedConfig controls the websocket ticker feed.
type FeedConfig struct {
	Enabled bool `toml:"enabled"`
}

// RedisConfig holds Redis connection parameters. When disabled, prices and
// events stay in process memory.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	PriceTTL   Duration `toml:"price_ttl"`
}

// Duration is a time.Duration that decodes from TOML strings such as "5m"
// or "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required as a Bearer token or X-API-Key header.
	APIKey  string `toml:"api_key"`
	Metrics bool   `toml:"metrics"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
			WSURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
			Timeout: Duration{10 * time.Second},
		},
		Execution: ExecutionConfig{
			BuyBufferCents:    2,
			SlowThreshold:     Duration{500 * time.Millisecond},
			CancelDelay:       Duration{2 * time.Second},
			CancelTimeout:     Duration{5 * time.Second},
			LiquidityFloor:    500,
			RecentTrades:      10,
			ClientOrderPrefix: "latarb",
			DedupWindow:       Duration{10 * time.Second},
			ReferenceMaxAge:   Duration{2 * time.Second},
		},
		Feed: FeedConfig{Enabled: true},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "latarb:",
			PriceTTL:   Duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Metrics:     true,
		},
		Notify: NotifyConfig{
			Events: []string{"slow_execution", "order_auto_cancelled", "watchdog_error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve": true,
	"check": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, check)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if !c.Kalshi.HasKey() && !c.Kalshi.HasLogin() {
		errs = append(errs, "kalshi: set key_id with private_key_path or encrypted_key_path, or email and password")
	}
	if c.Kalshi.KeyID != "" && c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.PrivateKeyPath == "" && c.Kalshi.KeyPassword == "" {
		errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
	}
	if c.Feed.Enabled && c.Kalshi.WSURL == "" {
		errs = append(errs, "kalshi: ws_url must not be empty when the feed is enabled")
	}

	// Execution
	if c.Execution.BuyBufferCents < 1 || c.Execution.BuyBufferCents > 98 {
		errs = append(errs, fmt.Sprintf("execution: buy_buffer_cents must be 1-98, got %d", c.Execution.BuyBufferCents))
	}
	if c.Execution.SlowThreshold.Duration <= 0 {
		errs = append(errs, "execution: slow_threshold must be > 0")
	}
	if c.Execution.CancelDelay.Duration <= 0 {
		errs = append(errs, "execution: cancel_delay must be > 0")
	}
	if c.Execution.LiquidityFloor < 0 {
		errs = append(errs, "execution: liquidity_floor must be >= 0")
	}
	if c.Execution.RecentTrades < 1 {
		errs = append(errs, "execution: recent_trades must be >= 1")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
