package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/latencyarb/internal/cache/memory"
	"github.com/alanyoungcy/latencyarb/internal/config"
	"github.com/alanyoungcy/latencyarb/internal/crypto"
	"github.com/alanyoungcy/latencyarb/internal/domain"
)

func testPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWireWithPlainKeyUsesMemoryCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kalshi.pem")
	require.NoError(t, os.WriteFile(path, testPEM(t), 0o600))

	cfg := config.Defaults()
	cfg.Kalshi.KeyID = "key-1"
	cfg.Kalshi.PrivateKeyPath = path

	deps, cleanup, err := Wire(context.Background(), &cfg, quiet())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Exchange)
	assert.IsType(t, &memory.PriceCache{}, deps.PriceCache)
	assert.IsType(t, &memory.EventBus{}, deps.Bus)
	assert.False(t, deps.Notifier.Enabled("slow_execution"), "no senders configured")
}

func TestCredentialsFromEncryptedKey(t *testing.T) {
	sealed, err := crypto.EncryptKey(testPEM(t), "key-2", "hunter2")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "kalshi.key.enc")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	creds, err := credentials(config.KalshiConfig{KeyID: "key-2", EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.True(t, creds.HasKey())

	_, err = credentials(config.KalshiConfig{KeyID: "key-2", EncryptedKeyPath: path, KeyPassword: "wrong"})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestWireWithoutCredentialsFails(t *testing.T) {
	cfg := config.Defaults()
	_, _, err := Wire(context.Background(), &cfg, quiet())
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestWireWithLogin(t *testing.T) {
	cfg := config.Defaults()
	cfg.Kalshi.Email = "ops@example.com"
	cfg.Kalshi.Password = "pw"

	deps, cleanup, err := Wire(context.Background(), &cfg, quiet())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, deps.Transport)
}
