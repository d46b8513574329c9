package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// AuthMode names the active authentication scheme.
type AuthMode string

const (
	AuthModeKey   AuthMode = "api_key"
	AuthModeToken AuthMode = "token"
)

// AuthInfo describes the result of an explicit authentication.
type AuthInfo struct {
	Mode      AuthMode  `json:"mode"`
	MemberID  string    `json:"member_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// RequestObserver receives one callback per completed exchange request.
// route has identifiers replaced so it is safe as a metric label.
type RequestObserver func(method, route string, status int, elapsed time.Duration)

// TransportConfig configures a Transport.
type TransportConfig struct {
	// BaseURL is the API root including its version prefix, e.g.
	// "https://api.elections.kalshi.com/trade-api/v2".
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	Logger      *slog.Logger
	Observer    RequestObserver
}

// Transport is the single choke point for signed exchange calls. It keeps a
// pooled keep-alive client and never retries.
type Transport struct {
	baseURL    string
	apiPrefix  string
	httpClient *http.Client
	signer     *RSASigner
	login      *Credentials
	token      tokenState
	now        func() time.Time
	observer   RequestObserver
	logger     *slog.Logger
}

// NewTransport validates the credentials and builds a Transport. It fails
// with ErrConfig when neither auth mode is usable.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid kalshi base url %q", domain.ErrConfig, cfg.BaseURL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	t := &Transport{
		baseURL:   u.String(),
		apiPrefix: u.Path,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		now:      time.Now,
		observer: cfg.Observer,
		logger:   logger.With(slog.String("component", "kalshi_transport")),
	}

	creds := cfg.Credentials
	switch {
	case creds.HasKey():
		t.signer = NewRSASigner(creds.KeyID, creds.PrivateKey)
	case creds.HasLogin():
		c := creds
		t.login = &c
	default:
		return nil, fmt.Errorf("%w: kalshi credentials missing: need key id + private key or email + password", domain.ErrConfig)
	}
	return t, nil
}

// Mode returns the active authentication mode.
func (t *Transport) Mode() AuthMode {
	if t.signer != nil {
		return AuthModeKey
	}
	return AuthModeToken
}

// CanonicalPath returns the path that is signed for a request: the API
// prefix, the resource path and, when present, the sorted query string.
func (t *Transport) CanonicalPath(path string, query url.Values) string {
	p := t.apiPrefix + path
	if len(query) > 0 {
		p += "?" + query.Encode()
	}
	return p
}

// Call performs one authenticated request and returns the raw response body.
// Non-2xx answers become *domain.TransportError.
func (t *Transport) Call(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	auth := authSigned
	if t.signer == nil {
		info, err := t.ensureToken(ctx, false)
		if err != nil {
			return nil, err
		}
		auth = authorization{bearer: info.token}
	}
	return t.do(ctx, method, path, query, body, auth)
}

// Authenticate performs an explicit credential check. In token mode it forces
// a fresh login; in key mode it issues a cheap signed read.
func (t *Transport) Authenticate(ctx context.Context) (AuthInfo, error) {
	if t.signer != nil {
		if _, err := t.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil, authSigned); err != nil {
			return AuthInfo{}, fmt.Errorf("kalshi: authenticate: %w", err)
		}
		return AuthInfo{Mode: AuthModeKey}, nil
	}
	info, err := t.ensureToken(ctx, true)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("kalshi: authenticate: %w", err)
	}
	return info.AuthInfo, nil
}

// HandshakeHeaders returns the auth headers for a websocket upgrade on
// wsPath, which is signed as a GET.
func (t *Transport) HandshakeHeaders(ctx context.Context, wsPath string) (http.Header, error) {
	h := http.Header{}
	if t.signer != nil {
		if err := t.signer.Apply(h, http.MethodGet, wsPath); err != nil {
			return nil, err
		}
		return h, nil
	}
	info, err := t.ensureToken(ctx, false)
	if err != nil {
		return nil, err
	}
	h.Set("Authorization", "Bearer "+info.token)
	return h, nil
}

// tokenInfo carries the bearer token alongside the public AuthInfo.
type tokenInfo struct {
	AuthInfo
	token string
}

// ensureToken logs in when the cached token is missing or close to expiry.
// Concurrent callers serialize on the token mutex so only one login runs.
func (t *Transport) ensureToken(ctx context.Context, force bool) (tokenInfo, error) {
	t.token.mu.Lock()
	defer t.token.mu.Unlock()

	now := t.now()
	if !force && !t.token.needsRefresh(now) {
		return t.token.info(), nil
	}

	raw, err := t.do(ctx, http.MethodPost, "/login", nil, loginRequest{
		Email:    t.login.Email,
		Password: t.login.Password,
	}, authNone)
	if err != nil {
		return tokenInfo{}, fmt.Errorf("kalshi: login: %w", err)
	}
	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return tokenInfo{}, fmt.Errorf("%w: decode login: %v", domain.ErrMalformedResponse, err)
	}
	if resp.Token == "" {
		return tokenInfo{}, fmt.Errorf("%w: login response without token", domain.ErrMalformedResponse)
	}
	t.token.set(resp.Token, resp.MemberID, now)
	t.logger.Info("kalshi session token refreshed",
		slog.String("member_id", resp.MemberID),
		slog.Time("expires_at", t.token.expiry),
	)
	return t.token.info(), nil
}

// authorization selects how do stamps credentials onto a request.
type authorization struct {
	sign   bool
	bearer string
}

var (
	authNone   = authorization{}
	authSigned = authorization{sign: true}
)

// do builds, authorizes, sends and reads one request.
func (t *Transport) do(ctx context.Context, method, path string, query url.Values, reqBody any, auth authorization) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := t.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	switch {
	case auth.sign:
		if err := t.signer.Apply(req.Header, method, t.CanonicalPath(path, query)); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	case auth.bearer != "":
		req.Header.Set("Authorization", "Bearer "+auth.bearer)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.observe(method, path, 0, time.Since(start))
		return nil, fmt.Errorf("kalshi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	t.observe(method, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("kalshi: read response: %w", err)
	}

	if err := checkStatus(method, path, resp.StatusCode, respBody); err != nil {
		t.logger.Debug("kalshi request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, err
	}
	return respBody, nil
}

func (t *Transport) observe(method, path string, status int, elapsed time.Duration) {
	if t.observer != nil {
		t.observer(method, RouteLabel(path), status, elapsed)
	}
}

// checkStatus maps non-2xx HTTP status codes to a TransportError.
func checkStatus(method, path string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	code, msg := apiErr.codeAndMessage()
	return &domain.TransportError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Body:       truncate(string(body), 512),
		Code:       code,
		Message:    msg,
	}
}

// RouteLabel collapses identifiers in a resource path so /markets/ABC/orderbook
// becomes /markets/{id}/orderbook.
func RouteLabel(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "markets", "orders", "events":
			if parts[i] != "" {
				parts[i] = "{id}"
			}
		}
	}
	return strings.Join(parts, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(" + strconv.Itoa(len(s)-n) + " more bytes)"
}
