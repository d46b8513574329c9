// Package metrics exposes Prometheus instruments for exchange latency,
// executions and the cancel watchdog.
//
// All methods are safe to call on a nil *Metrics so callers never need to
// guard optional instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latencyBuckets are in seconds and concentrated around the 500ms budget.
var latencyBuckets = []float64{0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.75, 1, 2, 5}

// Metrics groups every instrument on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	exchangeLatency *prometheus.HistogramVec
	executions      *prometheus.HistogramVec
	trades          *prometheus.CounterVec
	tradeFailures   *prometheus.CounterVec
	slowExecutions  prometheus.Counter
	slippageCost    prometheus.Counter
	watchdog        *prometheus.CounterVec
	pendingOrders   prometheus.Gauge
	feedUpdates     prometheus.Counter
}

// New registers all instruments under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		exchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_seconds",
			Help:      "Latency of signed exchange requests.",
			Buckets:   latencyBuckets,
		}, []string{"method", "route", "code"}),
		executions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_seconds",
			Help:      "End-to-end latency of buy and sell executions.",
			Buckets:   latencyBuckets,
		}, []string{"action"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Completed trades by action and side.",
		}, []string{"action", "side"}),
		tradeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_failures_total",
			Help:      "Failed trade attempts by action and failure kind.",
		}, []string{"action", "kind"}),
		slowExecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_executions_total",
			Help:      "Executions slower than the latency budget.",
		}),
		slippageCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slippage_cost_cents_total",
			Help:      "Cumulative adverse slippage cost in cents.",
		}),
		watchdog: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_resolutions_total",
			Help:      "Watchdog resolutions by outcome.",
		}, []string{"outcome"}),
		pendingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchdog_pending_orders",
			Help:      "Orders currently armed in the watchdog.",
		}),
		feedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_updates_total",
			Help:      "Ticker updates received from the exchange websocket.",
		}),
	}
	reg.MustRegister(
		m.exchangeLatency, m.executions, m.trades, m.tradeFailures,
		m.slowExecutions, m.slippageCost, m.watchdog, m.pendingOrders, m.feedUpdates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveExchange records one exchange round trip. It matches
// kalshi.RequestObserver.
func (m *Metrics) ObserveExchange(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.exchangeLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveExecution records a completed execution.
func (m *Metrics) ObserveExecution(action, side string, elapsed time.Duration, slow bool, slippageCostCents int64) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(action).Observe(elapsed.Seconds())
	m.trades.WithLabelValues(action, side).Inc()
	if slow {
		m.slowExecutions.Inc()
	}
	if slippageCostCents > 0 {
		m.slippageCost.Add(float64(slippageCostCents))
	}
}

// TradeFailed counts a failed execution.
func (m *Metrics) TradeFailed(action, kind string) {
	if m == nil {
		return
	}
	m.tradeFailures.WithLabelValues(action, kind).Inc()
}

// WatchdogResolved counts one watchdog outcome and refreshes the pending gauge.
func (m *Metrics) WatchdogResolved(outcome string, pending int) {
	if m == nil {
		return
	}
	m.watchdog.WithLabelValues(outcome).Inc()
	m.pendingOrders.Set(float64(pending))
}

// SetPending sets the pending-orders gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingOrders.Set(float64(n))
}

// FeedUpdate counts one websocket ticker update.
func (m *Metrics) FeedUpdate() {
	if m == nil {
		return
	}
	m.feedUpdates.Inc()
}
