package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/executor"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeTrades struct {
	ticker string
	last   executor.TradeRequest
	action domain.Action
	err    error
}

func (f *fakeTrades) Ticker() string { return f.ticker }

func (f *fakeTrades) ExecuteBuy(_ context.Context, req executor.TradeRequest) (executor.TradeResult, error) {
	f.last, f.action = req, domain.ActionBuy
	if f.err != nil {
		return executor.TradeResult{}, f.err
	}
	return executor.TradeResult{LatencyMs: 12, AutoCancelArmed: true}, nil
}

func (f *fakeTrades) ExecuteSell(_ context.Context, req executor.TradeRequest) (executor.TradeResult, error) {
	f.last, f.action = req, domain.ActionSell
	return executor.TradeResult{LatencyMs: 8}, f.err
}

type fakeRefs struct {
	price int64
	err   error
	asked string
}

func (f *fakeRefs) Reference(_ context.Context, ticker string, _ domain.Side, _ time.Duration) (int64, time.Time, error) {
	f.asked = ticker
	return f.price, time.Time{}, f.err
}

func postTrade(h *TradeHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/trade", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Trade(rec, req)
	return rec
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) failureResponse {
	t.Helper()
	var got failureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Failure)
	return got
}

func TestTradeBuyPassesReference(t *testing.T) {
	eng := &fakeTrades{ticker: "KXTEST"}
	h := NewTradeHandler(eng, nil, 0, quietLogger())

	rec := postTrade(h, `{"action":"BUY","side":"yes","count":10,"reference_price":45,"request_id":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ActionBuy, eng.action)
	require.NotNil(t, eng.last.ReferencePriceCents)
	assert.EqualValues(t, 45, *eng.last.ReferencePriceCents)
	assert.Equal(t, "r1", eng.last.RequestID)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"auto_cancel_armed":true`)
}

func TestTradeBuyFallsBackToCachedReference(t *testing.T) {
	eng := &fakeTrades{ticker: "KXTEST"}
	refs := &fakeRefs{price: 51}
	h := NewTradeHandler(eng, refs, 2*time.Second, quietLogger())

	rec := postTrade(h, `{"action":"buy","side":"no","count":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KXTEST", refs.asked)
	require.NotNil(t, eng.last.ReferencePriceCents)
	assert.EqualValues(t, 51, *eng.last.ReferencePriceCents)
}

func TestTradeBuyCachedReferenceUsesCanonicalTicker(t *testing.T) {
	eng := &fakeTrades{ticker: "KXTEST"}
	refs := &fakeRefs{price: 40}
	h := NewTradeHandler(eng, refs, 2*time.Second, quietLogger())

	rec := postTrade(h, `{"action":"buy","side":"yes","count":1,"ticker":" kxbtc-26mar01 "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KXBTC-26MAR01", refs.asked)
	require.NotNil(t, eng.last.ReferencePriceCents)
	assert.EqualValues(t, 40, *eng.last.ReferencePriceCents)
}

func TestTradeBuyStaleCacheLeavesReferenceUnset(t *testing.T) {
	eng := &fakeTrades{ticker: "KXTEST", err: fmt.Errorf("%w: reference price required", domain.ErrPrecondition)}
	refs := &fakeRefs{err: domain.ErrPrecondition}
	h := NewTradeHandler(eng, refs, 2*time.Second, quietLogger())

	rec := postTrade(h, `{"action":"buy","side":"yes","count":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, eng.last.ReferencePriceCents)
	assert.Equal(t, domain.FailurePrecondition, decodeFailure(t, rec).Failure.Kind)
}

func TestTradeRejectsBadInput(t *testing.T) {
	eng := &fakeTrades{}
	h := NewTradeHandler(eng, nil, 0, quietLogger())

	for _, body := range []string{
		`{"action":"hold","side":"yes","count":1}`,
		`{"action":"buy","side":"maybe","count":1}`,
		`{not json`,
	} {
		rec := postTrade(h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, eng.action, "engine never called")
}

func TestTradeSellTransportFailure(t *testing.T) {
	eng := &fakeTrades{err: &domain.TransportError{Method: "POST", Path: "/portfolio/orders", StatusCode: 503}}
	h := NewTradeHandler(eng, nil, 0, quietLogger())

	rec := postTrade(h, `{"action":"sell","side":"yes","count":2}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	got := decodeFailure(t, rec)
	assert.Equal(t, domain.FailureTransport, got.Failure.Kind)
	assert.Equal(t, 503, got.Failure.StatusCode)
}

func TestStatusForFailureKinds(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.FailurePrecondition))
	assert.Equal(t, http.StatusConflict, statusFor(domain.FailureRaceResolved))
	assert.Equal(t, http.StatusBadGateway, statusFor(domain.FailureTransport))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.FailureConfig))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.FailureInternal))
}

type fakeOrders struct {
	pending []domain.PendingOrder
	err     error
	gotID   string
}

func (f *fakeOrders) ListPending() []domain.PendingOrder { return f.pending }

func (f *fakeOrders) Cancel(_ context.Context, id string) (executor.CancelResult, error) {
	f.gotID = id
	return executor.CancelResult{OrderID: id, WasPending: true, AlreadyResolved: id == "ord-done"}, f.err
}

func cancelRequest(h *OrderHandler, id string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/orders/{id}", h.CancelOrder)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/orders/"+id, nil))
	return rec
}

func TestCancelOrder(t *testing.T) {
	eng := &fakeOrders{}
	rec := cancelRequest(NewOrderHandler(eng, quietLogger()), "ord-7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ord-7", eng.gotID)
	assert.Contains(t, rec.Body.String(), `"was_pending":true`)
}

func TestCancelOrderAlreadyGoneIsSuccess(t *testing.T) {
	rec := cancelRequest(NewOrderHandler(&fakeOrders{}, quietLogger()), "ord-done")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"already_resolved":true`)
}

func TestCancelOrderRaceResolvedMapsToConflict(t *testing.T) {
	eng := &fakeOrders{err: fmt.Errorf("executor: cancel: %w", domain.ErrRaceResolved)}
	rec := cancelRequest(NewOrderHandler(eng, quietLogger()), "ord-8")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.FailureRaceResolved, decodeFailure(t, rec).Failure.Kind)
}

func TestListPendingNeverNull(t *testing.T) {
	h := NewOrderHandler(&fakeOrders{}, quietLogger())
	rec := httptest.NewRecorder()
	h.ListPending(rec, httptest.NewRequest(http.MethodGet, "/api/orders/pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orders":[],"count":0}`, rec.Body.String())
}

type fakeStatus struct{}

func (fakeStatus) Ticker() string { return "KXTEST" }
func (fakeStatus) PendingCount() int { return 2 }

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(fakeStatus{}, quietLogger())
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "KXTEST", body["ticker"])
	assert.EqualValues(t, 2, body["pending_orders"])
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/markets?limit=500&bad=x", nil)
	assert.Equal(t, 100, queryInt(r, "limit", 20, 100))
	assert.Equal(t, 20, queryInt(r, "bad", 20, 100))
	assert.Equal(t, 20, queryInt(r, "missing", 20, 100))
}
