// Command latencyarb runs the Kalshi latency-arbitrage engine. It loads
// configuration, validates it, wires dependencies and runs the configured
// mode until interrupted.
//
// Usage:
//
//	latencyarb [-config config.toml]
//	latencyarb encrypt-key -key kalshi.pem -key-id ID -out kalshi.key.enc
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/latencyarb/internal/app"
	"github.com/alanyoungcy/latencyarb/internal/config"
	"github.com/alanyoungcy/latencyarb/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-key" {
		if err := encryptKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("latencyarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		application.Close()
		os.Exit(1)
	}

	logger.Info("latencyarb stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// encryptKey seals a PEM private key so it can be stored next to the config.
// The password comes from LATARB_KALSHI_KEY_PASSWORD.
func encryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	keyPath := fs.String("key", "", "PEM private key to encrypt")
	keyID := fs.String("key-id", "", "Kalshi API key id stored with the key")
	out := fs.String("out", "kalshi.key.enc", "output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" || *keyID == "" {
		return errors.New("-key and -key-id are required")
	}
	password := os.Getenv("LATARB_KALSHI_KEY_PASSWORD")
	if password == "" {
		return errors.New("LATARB_KALSHI_KEY_PASSWORD must be set")
	}

	pemBytes, err := os.ReadFile(*keyPath)
	if err != nil {
		return err
	}
	sealed, err := crypto.EncryptKey(pemBytes, *keyID, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, sealed, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}
