// Package watchdog auto-cancels buy orders that are still resting a short
// while after placement.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// DefaultDelay is how long a buy may rest before it is canceled.
const DefaultDelay = 2 * time.Second

// Outcome is the terminal state of an armed order.
type Outcome string

const (
	OutcomeFilled   Outcome = "filled"
	OutcomeCanceled Outcome = "canceled"
	OutcomeRaceLost Outcome = "race_lost"
	OutcomeError    Outcome = "error"
)

// Resolution reports how one armed order ended.
type Resolution struct {
	Order      domain.PendingOrder
	Outcome    Outcome
	Status     domain.OrderStatus
	Err        error
	ResolvedAt time.Time
}

// OrderGateway is the slice of the exchange the watchdog needs.
type OrderGateway interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Config tunes a Watchdog.
type Config struct {
	Delay       time.Duration
	CallTimeout time.Duration
	Clock       Clock
	Logger      *slog.Logger
	OnResolve   func(Resolution)
}

type entry struct {
	order domain.PendingOrder
	timer Timer
}

// Watchdog is a registry of armed orders keyed by order id. Whoever removes
// an entry first (the timer or Release) owns its resolution.
type Watchdog struct {
	gateway   OrderGateway
	clock     Clock
	delay     time.Duration
	timeout   time.Duration
	onResolve func(Resolution)
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Watchdog over gateway.
func New(gateway OrderGateway, cfg Config) *Watchdog {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watchdog{
		gateway:   gateway,
		clock:     cfg.Clock,
		delay:     cfg.Delay,
		timeout:   cfg.CallTimeout,
		onResolve: cfg.OnResolve,
		logger:    cfg.Logger.With(slog.String("component", "watchdog")),
		pending:   make(map[string]*entry),
	}
}

// Delay returns the configured check delay.
func (w *Watchdog) Delay() time.Duration { return w.delay }

// Arm schedules a check of order after the delay. Arming an id that is
// already armed, or arming after Stop, does nothing and returns false.
func (w *Watchdog) Arm(order domain.PendingOrder) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	if _, ok := w.pending[order.OrderID]; ok {
		return false
	}
	if order.PlacedAt.IsZero() {
		order.PlacedAt = w.clock.Now().UTC()
	}
	w.wg.Add(1)
	e := &entry{order: order}
	e.timer = w.clock.AfterFunc(w.delay, func() { w.fire(order) })
	w.pending[order.OrderID] = e

	w.logger.Debug("order armed",
		slog.String("order_id", order.OrderID),
		slog.String("ticker", order.Ticker),
		slog.Duration("delay", w.delay),
	)
	return true
}

// Release removes an armed order without touching the exchange. It is used
// when the operator cancels explicitly; the timer, if it fires later, finds
// nothing to do.
func (w *Watchdog) Release(orderID string) (domain.PendingOrder, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.pending[orderID]
	if !ok {
		return domain.PendingOrder{}, false
	}
	delete(w.pending, orderID)
	if e.timer.Stop() {
		w.wg.Done()
	}
	return e.order, true
}

// List returns the armed orders, oldest first.
func (w *Watchdog) List() []domain.PendingOrder {
	w.mu.Lock()
	out := make([]domain.PendingOrder, 0, len(w.pending))
	for _, e := range w.pending {
		out = append(out, e.order)
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

// Len returns the number of armed orders.
func (w *Watchdog) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop cancels every pending timer, refuses further arming and waits for
// checks already in flight.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	w.stopped = true
	for id, e := range w.pending {
		if e.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, id)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// claim removes the entry for orderID, reporting whether this caller won it.
func (w *Watchdog) claim(orderID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[orderID]; !ok {
		return false
	}
	delete(w.pending, orderID)
	return true
}

func (w *Watchdog) fire(order domain.PendingOrder) {
	defer w.wg.Done()

	res := Resolution{Order: order}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("watchdog: panic checking order %s: %v", order.OrderID, r)
		}
		res.ResolvedAt = w.clock.Now().UTC()
		w.report(res)
	}()

	if !w.claim(order.OrderID) {
		res.Outcome = OutcomeRaceLost
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	res.Outcome, res.Status, res.Err = w.check(ctx, order.OrderID)
}

// check looks the order up and cancels it if it can still fill.
func (w *Watchdog) check(ctx context.Context, orderID string) (Outcome, domain.OrderStatus, error) {
	o, err := w.gateway.GetOrder(ctx, orderID)
	if err != nil {
		return OutcomeError, "", fmt.Errorf("watchdog: get order %s: %w", orderID, err)
	}

	switch {
	case o.Status.Resting():
		if err := w.gateway.CancelOrder(ctx, orderID); err != nil && !domain.CancelAlreadyResolved(err) {
			return OutcomeError, o.Status, fmt.Errorf("watchdog: cancel order %s: %w", orderID, err)
		}
		return OutcomeCanceled, domain.OrderStatusCanceled, nil
	case o.Status == domain.OrderStatusExecuted:
		return OutcomeFilled, o.Status, nil
	case o.Status == domain.OrderStatusCanceled:
		return OutcomeCanceled, o.Status, nil
	default:
		return OutcomeError, o.Status, fmt.Errorf("watchdog: order %s has unknown status %q", orderID, o.Status)
	}
}

func (w *Watchdog) report(res Resolution) {
	attrs := []any{
		slog.String("order_id", res.Order.OrderID),
		slog.String("ticker", res.Order.Ticker),
		slog.String("outcome", string(res.Outcome)),
	}
	switch res.Outcome {
	case OutcomeError:
		w.logger.Error("watchdog check failed", append(attrs, slog.String("error", errString(res.Err)))...)
	case OutcomeCanceled:
		w.logger.Info("resting order auto-canceled", attrs...)
	default:
		w.logger.Debug("watchdog resolved", attrs...)
	}

	if w.onResolve == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("watchdog resolve hook panicked", slog.Any("panic", r))
		}
	}()
	w.onResolve(res)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
