package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func verify(t *testing.T, pub *rsa.PublicKey, message, sig string) {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	hash := sha256.Sum256([]byte(message))
	err = rsa.VerifyPSS(pub, crypto.SHA256, hash[:], raw, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	assert.NoError(t, err, "signature must verify over %q", message)
}

type capturedRequest struct {
	method string
	path   string
	query  string
	header http.Header
}

func newSignedTransport(t *testing.T, handler http.HandlerFunc) (*Transport, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tr, err := NewTransport(TransportConfig{
		BaseURL:     srv.URL + "/trade-api/v2",
		Credentials: Credentials{KeyID: "key-123", PrivateKey: rsaKey(t)},
	})
	require.NoError(t, err)
	return tr, srv
}

func TestSignatureExcludesBody(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []capturedRequest
	)
	tr, _ := newSignedTransport(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, capturedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone()})
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	fixed := time.UnixMilli(1_700_000_000_000)
	tr.signer.now = func() time.Time { return fixed }

	ctx := context.Background()
	_, err := tr.Call(ctx, http.MethodPost, "/portfolio/orders", nil, map[string]any{"count": 1})
	require.NoError(t, err)
	_, err = tr.Call(ctx, http.MethodPost, "/portfolio/orders", nil, map[string]any{"count": 500, "ticker": "X"})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	want := SignatureInput("1700000000000", http.MethodPost, "/trade-api/v2/portfolio/orders")
	assert.Equal(t, "1700000000000POST/trade-api/v2/portfolio/orders", want)
	for _, req := range seen {
		assert.Equal(t, "key-123", req.header.Get(HeaderAccessKey))
		assert.Equal(t, "1700000000000", req.header.Get(HeaderAccessTimestamp))
		verify(t, &rsaKey(t).PublicKey, want, req.header.Get(HeaderAccessSignature))
	}
}

func TestSignatureCoversSortedQuery(t *testing.T) {
	var got capturedRequest
	tr, _ := newSignedTransport(t, func(w http.ResponseWriter, r *http.Request) {
		got = capturedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, header: r.Header.Clone()}
		_, _ = w.Write([]byte(`{"markets":[]}`))
	})

	q := url.Values{}
	q.Set("status", "open")
	q.Set("limit", "5")
	assert.Equal(t, "/trade-api/v2/markets?limit=5&status=open", tr.CanonicalPath("/markets", q))
	assert.Equal(t, "/trade-api/v2/markets", tr.CanonicalPath("/markets", nil))

	_, err := tr.Call(context.Background(), http.MethodGet, "/markets", q, nil)
	require.NoError(t, err)
	assert.Equal(t, "limit=5&status=open", got.query)

	msg := SignatureInput(got.header.Get(HeaderAccessTimestamp), http.MethodGet, "/trade-api/v2/markets?limit=5&status=open")
	verify(t, &rsaKey(t).PublicKey, msg, got.header.Get(HeaderAccessSignature))
}

func TestCallNon2xxIsTransportError(t *testing.T) {
	tr, _ := newSignedTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"insufficient_balance","message":"not enough funds"}}`))
	})

	_, err := tr.Call(context.Background(), http.MethodPost, "/portfolio/orders", nil, map[string]any{})
	require.Error(t, err)

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Equal(t, "insufficient_balance", te.Code)
	assert.Equal(t, "not enough funds", te.Message)
	assert.Equal(t, domain.FailureTransport, domain.Classify(err))
}

func TestTokenRefreshIsLazy(t *testing.T) {
	var logins atomic.Int32
	var lastAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/trade-api/v2/login" {
			n := logins.Add(1)
			_, _ = w.Write([]byte(`{"token":"tok-` + string(rune('0'+n)) + `","member_id":"m-1"}`))
			return
		}
		lastAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"balance":1000}`))
	}))
	t.Cleanup(srv.Close)

	tr, err := NewTransport(TransportConfig{
		BaseURL:     srv.URL + "/trade-api/v2",
		Credentials: Credentials{Email: "a@b.c", Password: "pw"},
	})
	require.NoError(t, err)
	assert.Equal(t, AuthModeToken, tr.Mode())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	_, err = tr.Call(ctx, http.MethodGet, "/portfolio/balance", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, logins.Load())
	assert.Equal(t, "Bearer tok-1", lastAuth.Load())

	now = now.Add(24 * time.Minute)
	_, err = tr.Call(ctx, http.MethodGet, "/portfolio/balance", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, logins.Load(), "token still valid for more than five minutes")

	now = now.Add(1 * time.Minute)
	_, err = tr.Call(ctx, http.MethodGet, "/portfolio/balance", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, logins.Load(), "token within five minutes of expiry is refreshed")
	assert.Equal(t, "Bearer tok-2", lastAuth.Load())

	info, err := tr.Authenticate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, logins.Load())
	assert.Equal(t, "m-1", info.MemberID)
	assert.Equal(t, now.Add(30*time.Minute), info.ExpiresAt)
}

func TestNewTransportRequiresCredentials(t *testing.T) {
	_, err := NewTransport(TransportConfig{BaseURL: "https://example.com/trade-api/v2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = NewTransport(TransportConfig{
		BaseURL:     "https://example.com/trade-api/v2",
		Credentials: Credentials{KeyID: "only-id"},
	})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = NewTransport(TransportConfig{
		BaseURL:     "not a url",
		Credentials: Credentials{Email: "a", Password: "b"},
	})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestParsePrivateKey(t *testing.T) {
	key := rsaKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	got, err := ParsePrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	got, err = ParsePrivateKey(pkcs8)
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	_, err = ParsePrivateKey([]byte("garbage"))
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/markets/{id}/orderbook", RouteLabel("/markets/KXBTC-25/orderbook"))
	assert.Equal(t, "/portfolio/orders/{id}", RouteLabel("/portfolio/orders/abc"))
	assert.Equal(t, "/portfolio/orders", RouteLabel("/portfolio/orders"))
}
