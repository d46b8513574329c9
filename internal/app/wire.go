package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/latencyarb/internal/cache/memory"
	"github.com/alanyoungcy/latencyarb/internal/cache/redis"
	"github.com/alanyoungcy/latencyarb/internal/config"
	"github.com/alanyoungcy/latencyarb/internal/crypto"
	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/metrics"
	"github.com/alanyoungcy/latencyarb/internal/notify"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
	"github.com/alanyoungcy/latencyarb/internal/server/ws"
)

// EventBus is a bus the engine can publish to and the dashboard hub can
// read from.
type EventBus interface {
	domain.EventBus
	ws.Subscriber
}

// Dependencies bundles the concrete collaborators the modes run on.
type Dependencies struct {
	Transport *kalshi.Transport
	Exchange  *kalshi.Client

	PriceCache domain.PriceCache
	Bus        EventBus

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// Wire builds every dependency from cfg and returns a cleanup function that
// releases them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	if cfg.Server.Metrics {
		deps.Metrics = metrics.New("latarb")
	}

	// --- Exchange ---
	creds, err := credentials(cfg.Kalshi)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	transport, err := kalshi.NewTransport(kalshi.TransportConfig{
		BaseURL:     cfg.Kalshi.BaseURL,
		Credentials: creds,
		Timeout:     cfg.Kalshi.Timeout.Duration,
		Logger:      logger,
		Observer:    deps.Metrics.ObserveExchange,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: kalshi transport: %w", err)
	}
	deps.Transport = transport
	deps.Exchange = kalshi.NewClient(transport)

	// --- Prices and events ---
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
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.Bus = redis.NewEventBus(redisClient)
	} else {
		deps.PriceCache = memory.NewPriceCache()
		deps.Bus = memory.NewEventBus()
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// credentials resolves the configured auth mode. A key source wins over
// email and password.
func credentials(kc config.KalshiConfig) (kalshi.Credentials, error) {
	creds := kalshi.Credentials{Email: kc.Email, Password: kc.Password}
	if !kc.HasKey() {
		return creds, nil
	}
	pemBytes, err := crypto.LoadKey(crypto.KeySource{
		PEMPath:       kc.PrivateKeyPath,
		EncryptedPath: kc.EncryptedKeyPath,
		Password:      kc.KeyPassword,
	})
	if err != nil {
		return creds, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	key, err := kalshi.ParsePrivateKey(pemBytes)
	if err != nil {
		return creds, err
	}
	creds.KeyID = kc.KeyID
	creds.PrivateKey = key
	return creds, nil
}
