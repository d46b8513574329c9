package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveExchange("GET", "/markets", 200, time.Millisecond)
		m.ObserveExecution("buy", "yes", time.Second, true, 4)
		m.TradeFailed("buy", "transport")
		m.WatchdogResolved("canceled", 0)
		m.FeedUpdate()
	})
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCountersAreExported(t *testing.T) {
	m := New("latarb")
	m.ObserveExecution("buy", "yes", 600*time.Millisecond, true, 6)
	m.ObserveExecution("sell", "no", 100*time.Millisecond, false, -2)
	m.WatchdogResolved("canceled", 3)
	m.ObserveExchange("GET", "/markets/{id}/orderbook", 200, 80*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, "latarb_slow_executions_total 1")
	assert.Contains(t, body, "latarb_slippage_cost_cents_total 6")
	assert.Contains(t, body, `latarb_trades_total{action="buy",side="yes"} 1`)
	assert.Contains(t, body, `latarb_watchdog_resolutions_total{outcome="canceled"} 1`)
	assert.Contains(t, body, "latarb_watchdog_pending_orders 3")
	assert.Contains(t, body, `latarb_exchange_request_seconds_count{code="200",method="GET",route="/markets/{id}/orderbook"} 1`)
}
