package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// Header names for key-signed requests.
const (
	HeaderAccessKey       = "KALSHI-ACCESS-KEY"
	HeaderAccessSignature = "KALSHI-ACCESS-SIGNATURE"
	HeaderAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

const (
	tokenLifetime      = 30 * time.Minute
	tokenRefreshMargin = 5 * time.Minute
)

// Credentials selects the authentication mode. A key id with a private key
// wins over email/password.
type Credentials struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	Email      string
	Password   string
}

// HasKey reports whether key-signed auth is configured.
func (c Credentials) HasKey() bool {
	return c.KeyID != "" && c.PrivateKey != nil
}

// HasLogin reports whether legacy email/password auth is configured.
func (c Credentials) HasLogin() bool {
	return c.Email != "" && c.Password != ""
}

// ParsePrivateKey loads an RSA private key from PEM-encoded bytes, accepting
// both PKCS#8 and PKCS#1 encodings.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found in private key", domain.ErrConfig)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v (pkcs1: %v)", domain.ErrConfig, err, pkcs1Err)
		}
		return pkcs1Key, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected RSA private key, got %T", domain.ErrConfig, key)
	}
	return rsaKey, nil
}

// SignatureInput builds the exact string that is signed for a request. The
// body is never part of it.
func SignatureInput(timestampMs, method, canonicalPath string) string {
	return timestampMs + method + canonicalPath
}

// RSASigner produces RSA-PSS-SHA256 request signatures.
type RSASigner struct {
	keyID string
	key   *rsa.PrivateKey
	rand  io.Reader
	now   func() time.Time
}

// NewRSASigner creates a signer for the given key.
func NewRSASigner(keyID string, key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{keyID: keyID, key: key, rand: rand.Reader, now: time.Now}
}

// Sign returns the base64 signature of message.
func (s *RSASigner) Sign(message string) (string, error) {
	hash := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(s.rand, s.key, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("kalshi: RSA sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Apply stamps the three access headers onto h for method and canonicalPath.
func (s *RSASigner) Apply(h http.Header, method, canonicalPath string) error {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	sig, err := s.Sign(SignatureInput(ts, method, canonicalPath))
	if err != nil {
		return err
	}
	h.Set(HeaderAccessKey, s.keyID)
	h.Set(HeaderAccessSignature, sig)
	h.Set(HeaderAccessTimestamp, ts)
	return nil
}

// tokenState is the cached legacy session token. Refresh is lazy: a token is
// renewed once fewer than five minutes of its thirty-minute life remain.
type tokenState struct {
	mu       sync.Mutex
	token    string
	memberID string
	expiry   time.Time
}

func (t *tokenState) needsRefresh(now time.Time) bool {
	return t.token == "" || !now.Before(t.expiry.Add(-tokenRefreshMargin))
}

func (t *tokenState) info() tokenInfo {
	return tokenInfo{
		AuthInfo: AuthInfo{Mode: AuthModeToken, MemberID: t.memberID, ExpiresAt: t.expiry},
		token:    t.token,
	}
}

func (t *tokenState) set(token, memberID string, now time.Time) {
	t.token = token
	t.memberID = memberID
	t.expiry = now.Add(tokenLifetime)
}
