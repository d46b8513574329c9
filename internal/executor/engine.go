// Package executor turns operator trade requests into priced limit orders
// and records what happened.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/metrics"
	"github.com/alanyoungcy/latencyarb/internal/notify"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
	"github.com/alanyoungcy/latencyarb/internal/service"
	"github.com/alanyoungcy/latencyarb/internal/session"
	"github.com/alanyoungcy/latencyarb/internal/watchdog"
)

const (
	// DefaultSlowThreshold is the latency budget for one execution.
	DefaultSlowThreshold = 500 * time.Millisecond
	// DefaultRecentTrades is how many trades Stats returns.
	DefaultRecentTrades = 10

	slowWarning = "SLOW EXECUTION"
)

// MarketData is the read side of the exchange the engine needs.
type MarketData interface {
	Authenticate(ctx context.Context) (kalshi.AuthInfo, error)
	GetSnapshot(ctx context.Context, ticker string) (domain.MarketSnapshot, error)
	GetDepth(ctx context.Context, ticker string) (domain.Depth, error)
	GetMarket(ctx context.Context, ticker string) (domain.Market, error)
	SearchMarkets(ctx context.Context, prefix string, limit int) ([]domain.Market, error)
	GetBalance(ctx context.Context) (domain.Balance, error)
	GetExchangePositions(ctx context.Context, ticker string) ([]domain.ExchangePosition, error)
}

// OrderGateway is the order side of the exchange.
type OrderGateway interface {
	OrderSubmitter
	watchdog.OrderGateway
}

// Config tunes the engine.
type Config struct {
	BuyBufferCents    int64
	SlowThreshold     time.Duration
	RecentTrades      int
	CancelDelay       time.Duration
	CancelTimeout     time.Duration
	ClientOrderPrefix string
	DefaultTicker     string
	DedupWindow       time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BuyBufferCents:    DefaultBuyBufferCents,
		SlowThreshold:     DefaultSlowThreshold,
		RecentTrades:      DefaultRecentTrades,
		CancelDelay:       watchdog.DefaultDelay,
		CancelTimeout:     5 * time.Second,
		ClientOrderPrefix: "latarb",
		DedupWindow:       10 * time.Second,
	}
}

// Deps are the collaborators of an Engine. Prices, Bus, Notifier and Metrics
// are optional.
type Deps struct {
	Market   MarketData
	Orders   OrderGateway
	Prices   *service.PriceService
	Bus      domain.EventBus
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
	Clock    watchdog.Clock
	Logger   *slog.Logger
}

// TradeRequest is one operator order. An empty Ticker means the active
// ticker. RequestID, when set, makes the request idempotent within the
// dedup window.
type TradeRequest struct {
	RequestID           string      `json:"request_id,omitempty"`
	Ticker              string      `json:"ticker,omitempty"`
	Side                domain.Side `json:"side"`
	Count               int64       `json:"count"`
	ReferencePriceCents *int64      `json:"reference_price,omitempty"`
}

// TradeResult is what a successful execution returns.
type TradeResult struct {
	Order           domain.Order       `json:"order"`
	Trade           domain.TradeRecord `json:"trade"`
	Position        session.Position   `json:"position"`
	LatencyMs       float64            `json:"latency_ms"`
	Slow            bool               `json:"slow"`
	Warning         string             `json:"warning,omitempty"`
	AutoCancelArmed bool               `json:"auto_cancel_armed"`
}

// CancelResult reports an explicit cancel.
type CancelResult struct {
	OrderID    string `json:"order_id"`
	WasPending bool   `json:"was_pending"`
	// AlreadyResolved is set when the exchange reported the order as
	// already gone, e.g. the watchdog canceled it first.
	AlreadyResolved bool `json:"already_resolved"`
}

// PositionView is a ledger entry, marked to the latest cached bid when one
// is known.
type PositionView struct {
	session.Position
	MarkCents *int64             `json:"mark_cents,omitempty"`
	Valuation *session.Valuation `json:"valuation,omitempty"`
}

// Stats is the session summary shown to the operator.
type Stats struct {
	SessionStart  time.Time            `json:"session_start"`
	Summary       session.Summary      `json:"summary"`
	RecentTrades  []domain.TradeRecord `json:"recent_trades"`
	Positions     []session.Position   `json:"positions"`
	PendingOrders int                  `json:"pending_orders"`
}

// Engine is the inbound surface of the trading core. It owns the session,
// the cancel watchdog and the active ticker.
type Engine struct {
	cfg      Config
	market   MarketData
	orders   OrderGateway
	prices   *service.PriceService
	bus      domain.EventBus
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	placer   *OrderPlacer
	session  *session.Session
	watchdog *watchdog.Watchdog
	dedup    *Dedup
	now      func() time.Time

	mu        sync.RWMutex
	ticker    string
	listeners []func(string)
}

// New creates an Engine and its watchdog.
func New(deps Deps, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.BuyBufferCents <= 0 {
		cfg.BuyBufferCents = def.BuyBufferCents
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = def.SlowThreshold
	}
	if cfg.RecentTrades <= 0 {
		cfg.RecentTrades = def.RecentTrades
	}
	if cfg.ClientOrderPrefix == "" {
		cfg.ClientOrderPrefix = def.ClientOrderPrefix
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := deps.Bus
	if bus == nil {
		bus = nopBus{}
	}

	e := &Engine{
		cfg:      cfg,
		market:   deps.Market,
		orders:   deps.Orders,
		prices:   deps.Prices,
		bus:      bus,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   logger.With(slog.String("component", "engine")),
		placer:   NewOrderPlacer(deps.Orders, NewClientOrderIDs(cfg.ClientOrderPrefix), logger),
		session:  session.New(),
		dedup:    NewDedup(cfg.DedupWindow),
		now:      time.Now,
		ticker:   strings.ToUpper(strings.TrimSpace(cfg.DefaultTicker)),
	}
	e.watchdog = watchdog.New(deps.Orders, watchdog.Config{
		Delay:       cfg.CancelDelay,
		CallTimeout: cfg.CancelTimeout,
		Clock:       deps.Clock,
		Logger:      logger,
		OnResolve:   e.handleResolution,
	})
	return e
}

// Close stops the watchdog and waits for queued notifications.
func (e *Engine) Close() {
	e.watchdog.Stop()
	e.notifier.Wait()
}

// Authenticate logs in or validates the API key.
func (e *Engine) Authenticate(ctx context.Context) (kalshi.AuthInfo, error) {
	return e.market.Authenticate(ctx)
}

// Ticker returns the active ticker, or "" when none is set.
func (e *Engine) Ticker() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ticker
}

// OnTickerChange registers fn to be called after the active ticker changes.
func (e *Engine) OnTickerChange(fn func(ticker string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// SetTicker validates ticker against the exchange and makes it active.
func (e *Engine) SetTicker(ctx context.Context, ticker string) (domain.Market, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return domain.Market{}, fmt.Errorf("%w: ticker is required", domain.ErrPrecondition)
	}
	m, err := e.market.GetMarket(ctx, ticker)
	if err != nil {
		return domain.Market{}, fmt.Errorf("executor: set ticker %q: %w", ticker, err)
	}

	e.mu.Lock()
	e.ticker = ticker
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "active ticker set", slog.String("ticker", ticker), slog.String("title", m.Title))
	for _, fn := range listeners {
		fn(ticker)
	}
	return m, nil
}

func (e *Engine) resolveTicker(ticker string) (string, error) {
	if t := strings.ToUpper(strings.TrimSpace(ticker)); t != "" {
		return t, nil
	}
	if t := e.Ticker(); t != "" {
		return t, nil
	}
	return "", domain.ErrNoTicker
}

// GetSnapshot fetches the orderbook for ticker, or the active ticker.
func (e *Engine) GetSnapshot(ctx context.Context, ticker string) (domain.MarketSnapshot, error) {
	t, err := e.resolveTicker(ticker)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	return e.market.GetSnapshot(ctx, t)
}

// GetDepth sums liquidity for ticker, or the active ticker.
func (e *Engine) GetDepth(ctx context.Context, ticker string) (domain.Depth, error) {
	t, err := e.resolveTicker(ticker)
	if err != nil {
		return domain.Depth{}, err
	}
	return e.market.GetDepth(ctx, t)
}

// SearchMarkets lists open markets whose ticker starts with prefix.
func (e *Engine) SearchMarkets(ctx context.Context, prefix string, limit int) ([]domain.Market, error) {
	return e.market.SearchMarkets(ctx, prefix, limit)
}

// Balance returns the account balance.
func (e *Engine) Balance(ctx context.Context) (domain.Balance, error) {
	return e.market.GetBalance(ctx)
}

// ExchangePositions returns the exchange's view of positions in the active
// ticker, or every position when no ticker is set.
func (e *Engine) ExchangePositions(ctx context.Context) ([]domain.ExchangePosition, error) {
	return e.market.GetExchangePositions(ctx, e.Ticker())
}

// ExecuteBuy places an aggressive buy priced off the caller's reference
// price and arms the cancel watchdog for it.
func (e *Engine) ExecuteBuy(ctx context.Context, req TradeRequest) (TradeResult, error) {
	start := e.now()
	ticker, side, err := e.validate(req)
	if err != nil {
		return e.fail(ctx, domain.ActionBuy, err)
	}
	if req.ReferencePriceCents == nil {
		return e.fail(ctx, domain.ActionBuy, fmt.Errorf("%w: reference price is required for a buy", domain.ErrPrecondition))
	}
	ref := *req.ReferencePriceCents
	if ref < domain.MinPriceCents || ref > domain.MaxPriceCents {
		return e.fail(ctx, domain.ActionBuy, fmt.Errorf("%w: reference price %d outside 1..99", domain.ErrPrecondition, ref))
	}
	if e.dedup.IsDuplicate(req.RequestID) {
		return e.fail(ctx, domain.ActionBuy, fmt.Errorf("%w: duplicate request %q", domain.ErrPrecondition, req.RequestID))
	}

	price := BuyPrice(ref, e.cfg.BuyBufferCents)
	order, err := e.placer.PlaceOrder(ctx, ticker, side, domain.ActionBuy, req.Count, price)
	if err != nil {
		e.dedup.Forget(req.RequestID)
		return e.fail(ctx, domain.ActionBuy, err)
	}

	res := e.commit(order, price, ref, start)
	if order.OrderID != "" {
		res.AutoCancelArmed = e.watchdog.Arm(domain.PendingOrder{
			OrderID:  order.OrderID,
			Ticker:   ticker,
			Side:     side,
			Action:   domain.ActionBuy,
			PlacedAt: res.Trade.Timestamp,
		})
		e.metrics.SetPending(e.watchdog.Len())
	}
	e.finish(ctx, res)
	return res, nil
}

// ExecuteSell sells into the best bid of a fresh snapshot. The reference
// price only feeds slippage and defaults to the executed price.
func (e *Engine) ExecuteSell(ctx context.Context, req TradeRequest) (TradeResult, error) {
	start := e.now()
	ticker, side, err := e.validate(req)
	if err != nil {
		return e.fail(ctx, domain.ActionSell, err)
	}
	if e.dedup.IsDuplicate(req.RequestID) {
		return e.fail(ctx, domain.ActionSell, fmt.Errorf("%w: duplicate request %q", domain.ErrPrecondition, req.RequestID))
	}

	snap, err := e.market.GetSnapshot(ctx, ticker)
	if err != nil {
		e.dedup.Forget(req.RequestID)
		return e.fail(ctx, domain.ActionSell, err)
	}
	price, err := SellPrice(snap, side)
	if err != nil {
		e.dedup.Forget(req.RequestID)
		return e.fail(ctx, domain.ActionSell, err)
	}
	order, err := e.placer.PlaceOrder(ctx, ticker, side, domain.ActionSell, req.Count, price)
	if err != nil {
		e.dedup.Forget(req.RequestID)
		return e.fail(ctx, domain.ActionSell, err)
	}

	ref := price
	if req.ReferencePriceCents != nil {
		ref = *req.ReferencePriceCents
	}
	res := e.commit(order, price, ref, start)
	e.finish(ctx, res)
	return res, nil
}

func (e *Engine) validate(req TradeRequest) (string, domain.Side, error) {
	ticker, err := e.resolveTicker(req.Ticker)
	if err != nil {
		return "", "", err
	}
	side, err := domain.ParseSide(string(req.Side))
	if err != nil {
		return "", "", err
	}
	if req.Count <= 0 {
		return "", "", fmt.Errorf("%w: count must be positive, got %d", domain.ErrPrecondition, req.Count)
	}
	return ticker, side, nil
}

// commit records the fill in the ledger and journal together.
func (e *Engine) commit(order domain.Order, price, ref int64, start time.Time) TradeResult {
	latency := e.now().Sub(start)
	slip := domain.Slippage(order.Action, price, ref)
	record := domain.TradeRecord{
		ID:                  uuid.NewString(),
		Timestamp:           e.now().UTC(),
		Ticker:              order.Ticker,
		Side:                order.Side,
		Action:              order.Action,
		Count:               order.Count,
		ExecutedPriceCents:  price,
		ReferencePriceCents: ref,
		SlippageCents:       slip,
		SlippageCostCents:   slip * order.Count,
		LatencyMs:           float64(latency.Microseconds()) / 1000,
		OrderID:             order.OrderID,
	}
	pos := e.session.Commit(domain.Fill{
		Ticker:     order.Ticker,
		Side:       order.Side,
		Action:     order.Action,
		Count:      order.Count,
		PriceCents: price,
	}, record)

	res := TradeResult{
		Order:     order,
		Trade:     record,
		Position:  pos,
		LatencyMs: record.LatencyMs,
		Slow:      latency > e.cfg.SlowThreshold,
	}
	if res.Slow {
		res.Warning = slowWarning
	}
	return res
}

// finish reports a completed trade to metrics, the bus and the notifier.
func (e *Engine) finish(ctx context.Context, res TradeResult) {
	t := res.Trade
	latency := time.Duration(t.LatencyMs * float64(time.Millisecond))
	e.metrics.ObserveExecution(string(t.Action), string(t.Side), latency, res.Slow, t.SlippageCostCents)

	if payload, err := json.Marshal(t); err == nil {
		if err := e.bus.Publish(ctx, domain.ChannelTrades, payload); err != nil {
			e.logger.WarnContext(ctx, "publish trade failed", slog.String("error", err.Error()))
		}
	}

	summary := fmt.Sprintf("%s %d %s %s @ %d¢ (ref %d¢, slippage %+d¢) in %.1fms",
		t.Action, t.Count, t.Ticker, t.Side, t.ExecutedPriceCents, t.ReferencePriceCents, t.SlippageCents, t.LatencyMs)
	e.notifier.Go(notify.EventTradeExecuted, "Trade executed", summary)

	attrs := []any{
		slog.String("trade_id", t.ID),
		slog.String("order_id", t.OrderID),
		slog.String("ticker", t.Ticker),
		slog.String("side", string(t.Side)),
		slog.String("action", string(t.Action)),
		slog.Int64("count", t.Count),
		slog.Int64("price_cents", t.ExecutedPriceCents),
		slog.Int64("slippage_cents", t.SlippageCents),
		slog.Float64("latency_ms", t.LatencyMs),
	}
	if res.Slow {
		e.notifier.Go(notify.EventSlowExecution, slowWarning, summary)
		e.logger.WarnContext(ctx, "slow execution", attrs...)
		return
	}
	e.logger.InfoContext(ctx, "trade executed", attrs...)
}

func (e *Engine) fail(ctx context.Context, action domain.Action, err error) (TradeResult, error) {
	kind := domain.Classify(err)
	e.metrics.TradeFailed(string(action), string(kind))
	e.logger.WarnContext(ctx, "trade failed",
		slog.String("action", string(action)),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	return TradeResult{}, err
}

// Positions returns the ledger, marked to cached bids where available.
func (e *Engine) Positions(ctx context.Context) []PositionView {
	positions := e.session.Positions()
	out := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		v := PositionView{Position: p}
		if e.prices != nil {
			if mark, _, err := e.prices.Reference(ctx, p.Ticker, p.Side, 0); err == nil {
				val := session.MarkToMarket(session.PositionState{Count: p.Count, Cost: p.CostCents}, mark)
				v.MarkCents = &mark
				v.Valuation = &val
			}
		}
		out = append(out, v)
	}
	return out
}

// Stats returns a consistent view of the session.
func (e *Engine) Stats() Stats {
	snap := e.session.Snapshot(e.cfg.RecentTrades)
	return Stats{
		SessionStart:  snap.StartedAt,
		Summary:       snap.Summary,
		RecentTrades:  snap.Recent,
		Positions:     snap.Positions,
		PendingOrders: e.watchdog.Len(),
	}
}

// ResetSession clears the ledger and journal and returns the new start
// time. Armed orders stay armed.
func (e *Engine) ResetSession(ctx context.Context) time.Time {
	started := e.session.Reset()
	e.logger.InfoContext(ctx, "session reset", slog.Time("session_start", started))
	return started
}

// PendingCount returns how many orders the watchdog is tracking.
func (e *Engine) PendingCount() int {
	return e.watchdog.Len()
}

// ListPending returns orders the watchdog is still tracking.
func (e *Engine) ListPending() []domain.PendingOrder {
	return e.watchdog.List()
}

// Cancel releases orderID from the watchdog and cancels it on the exchange.
// An order the exchange reports as already gone is a success with
// AlreadyResolved set. Any other failure re-arms the watchdog so the order
// is never left resting unguarded.
func (e *Engine) Cancel(ctx context.Context, orderID string) (CancelResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return CancelResult{}, fmt.Errorf("%w: order id is required", domain.ErrPrecondition)
	}
	pending, wasPending := e.watchdog.Release(orderID)
	e.metrics.SetPending(e.watchdog.Len())
	res := CancelResult{OrderID: orderID, WasPending: wasPending}

	if err := e.orders.CancelOrder(ctx, orderID); err != nil {
		if domain.CancelAlreadyResolved(err) {
			res.AlreadyResolved = true
			e.logger.DebugContext(ctx, "order already resolved",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
			return res, nil
		}
		if wasPending {
			// Restarts the full delay from now.
			e.watchdog.Arm(pending)
			e.metrics.SetPending(e.watchdog.Len())
		}
		return res, fmt.Errorf("executor: cancel %s: %w", orderID, err)
	}
	e.logger.InfoContext(ctx, "order canceled",
		slog.String("order_id", orderID),
		slog.Bool("was_pending", wasPending),
	)
	return res, nil
}

type watchdogEvent struct {
	OrderID    string    `json:"order_id"`
	Ticker     string    `json:"ticker"`
	Side       string    `json:"side"`
	Outcome    string    `json:"outcome"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

func (e *Engine) handleResolution(res watchdog.Resolution) {
	e.metrics.WatchdogResolved(string(res.Outcome), e.watchdog.Len())

	ev := watchdogEvent{
		OrderID:    res.Order.OrderID,
		Ticker:     res.Order.Ticker,
		Side:       string(res.Order.Side),
		Outcome:    string(res.Outcome),
		Status:     string(res.Status),
		ResolvedAt: res.ResolvedAt,
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	if payload, err := json.Marshal(ev); err == nil {
		_ = e.bus.Publish(context.Background(), domain.ChannelWatchdog, payload)
	}

	switch res.Outcome {
	case watchdog.OutcomeCanceled:
		e.notifier.Go(notify.EventOrderAutoCancelled, "Order auto-cancelled",
			fmt.Sprintf("%s %s order %s still resting after %s", res.Order.Ticker, res.Order.Side, res.Order.OrderID, e.watchdog.Delay()))
	case watchdog.OutcomeError:
		e.notifier.Go(notify.EventWatchdogError, "Watchdog error",
			fmt.Sprintf("order %s: %s", res.Order.OrderID, ev.Error))
	}
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, []byte) error { return nil }
