package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "latencyarb.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "check"

[kalshi]
key_id = "abc"
private_key_path = "/keys/kalshi.pem"

[execution]
buy_buffer_cents = 3
cancel_delay = "1500ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "check", cfg.Mode)
	assert.EqualValues(t, 3, cfg.Execution.BuyBufferCents)
	assert.Equal(t, 1500*time.Millisecond, cfg.Execution.CancelDelay.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Execution.SlowThreshold.Duration, "unset keys keep defaults")
	assert.True(t, cfg.Kalshi.HasKey())
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "serve", cfg.Mode)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KALSHI_EMAIL", "ops@example.com")
	t.Setenv("KALSHI_PASSWORD", "pw")
	t.Setenv("LATARB_EXECUTION_SLOW_THRESHOLD", "750ms")
	t.Setenv("LATARB_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Kalshi.HasLogin())
	assert.Equal(t, 750*time.Millisecond, cfg.Execution.SlowThreshold.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Server.Port = 0
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "yolo"`)
	assert.Contains(t, msg, "kalshi: set key_id")
	assert.Contains(t, msg, "server: port")
	assert.Contains(t, msg, "telegram_chat_id")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Kalshi.Password = "secret"
	cfg.Server.APIKey = "k"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Kalshi.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "", out.Kalshi.KeyPassword)
	assert.Equal(t, "secret", cfg.Kalshi.Password)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
