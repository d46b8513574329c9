package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// kalshiWriteWait is the time allowed to write a message to the peer.
	kalshiWriteWait = 10 * time.Second

	// kalshiPongWait is the time allowed to read the next pong message.
	kalshiPongWait = 30 * time.Second

	// kalshiPingPeriod sends pings at this interval. Must be less than pongWait.
	kalshiPingPeriod = (kalshiPongWait * 9) / 10

	kalshiReconnectDelay    = 2 * time.Second
	kalshiMaxReconnectDelay = 60 * time.Second
)

// HeaderSource produces handshake headers for a websocket path.
type HeaderSource func(ctx context.Context, wsPath string) (http.Header, error)

// TickerHandler is called for every ticker update received.
type TickerHandler func(TickerUpdate)

// WSClient streams best-bid ticker updates for the subscribed markets. Run
// owns the connection and reconnects with exponential backoff until ctx is
// done.
type WSClient struct {
	wsURL   string
	wsPath  string
	headers HeaderSource
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	tickers []string
	cmdID   int64

	handlerMu sync.RWMutex
	handlers  []TickerHandler
}

// NewWSClient creates a new Kalshi WebSocket client.
//
// wsURL is the WebSocket endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewWSClient(wsURL string, headers HeaderSource, logger *slog.Logger) (*WSClient, error) {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("kalshi/ws: invalid url %q", wsURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		wsURL:   wsURL,
		wsPath:  u.Path,
		headers: headers,
		logger:  logger.With(slog.String("component", "kalshi_ws")),
	}, nil
}

// OnTicker registers a handler that is called for every ticker update.
func (w *WSClient) OnTicker(handler TickerHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// SetTickers replaces the subscription set. When connected the new set is
// subscribed immediately; otherwise it is used on the next connect.
func (w *WSClient) SetTickers(tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tickers = append([]string(nil), tickers...)
	if w.conn == nil || len(w.tickers) == 0 {
		return nil
	}
	if err := w.sendSubscribe(w.conn, w.tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}
	return nil
}

// Run connects, reads and reconnects until ctx is cancelled.
func (w *WSClient) Run(ctx context.Context) error {
	delay := kalshiReconnectDelay
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("kalshi ws disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > kalshiMaxReconnectDelay {
			delay = kalshiMaxReconnectDelay
		}
	}
}

// session runs a single connection until it fails or ctx ends.
func (w *WSClient) session(ctx context.Context) error {
	var hdr http.Header
	if w.headers != nil {
		h, err := w.headers(ctx, w.wsPath)
		if err != nil {
			return fmt.Errorf("handshake headers: %w", err)
		}
		hdr = h
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, hdr)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	})

	w.mu.Lock()
	w.conn = conn
	if len(w.tickers) > 0 {
		if err := w.sendSubscribe(conn, w.tickers); err != nil {
			w.conn = nil
			w.mu.Unlock()
			return fmt.Errorf("restore subscriptions: %w", err)
		}
	}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}()

	w.logger.Info("kalshi ws connected", slog.String("url", w.wsURL))

	stop := make(chan struct{})
	defer close(stop)
	go w.pingLoop(conn, stop)
	go func() {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(kalshiWriteWait))
			w.mu.Unlock()
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		w.handleMessage(message)
	}
}

// sendSubscribe sends a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(conn *websocket.Conn, tickers []string) error {
	w.cmdID++
	cmd := KalshiWSSubscribeCmd{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: KalshiWSSubscribeParams{
			Channels: []string{"ticker"},
			Tickers:  tickers,
		},
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(kalshiPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(kalshiWriteWait))
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and routes it.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope KalshiWSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w.logger.Debug("kalshi ws: undecodable frame", slog.String("error", err.Error()))
		return
	}

	switch envelope.Type {
	case "ticker", "ticker_v2":
		var t KalshiWSTicker
		if err := json.Unmarshal(envelope.Msg, &t); err != nil || t.Ticker == "" {
			return
		}
		update := t.toUpdate()

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(update)
		}
	case "error":
		w.logger.Warn("kalshi ws error frame", slog.String("msg", string(envelope.Msg)))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}
