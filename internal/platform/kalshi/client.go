package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// Client is the REST client for the Kalshi exchange API. Every call goes
// through the signed Transport.
type Client struct {
	transport *Transport
}

// NewClient creates a new Kalshi REST client.
func NewClient(t *Transport) *Client {
	return &Client{transport: t}
}

// Transport exposes the underlying signed transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Authenticate runs an explicit credential check.
func (c *Client) Authenticate(ctx context.Context) (AuthInfo, error) {
	return c.transport.Authenticate(ctx)
}

// MarketQuery filters a market listing.
type MarketQuery struct {
	Status      string
	EventTicker string
	Limit       int
	Cursor      string
}

// GetMarkets returns one page of Kalshi markets and the cursor of the next
// page. An empty cursor means the listing is exhausted.
func (c *Client) GetMarkets(ctx context.Context, q MarketQuery) ([]domain.Market, string, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.EventTicker != "" {
		params.Set("event_ticker", q.EventTicker)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	body, err := c.transport.Call(ctx, http.MethodGet, "/markets", params, nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []KalshiMarket `json:"markets"`
		Cursor  string         `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("%w: decode markets: %v", domain.ErrMalformedResponse, err)
	}

	out := make([]domain.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, m.toDomain())
	}
	return out, resp.Cursor, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.transport.Call(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market *KalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("%w: decode market: %v", domain.ErrMalformedResponse, err)
	}
	if resp.Market == nil {
		return domain.Market{}, fmt.Errorf("%w: market %s missing from response", domain.ErrMalformedResponse, ticker)
	}
	return resp.Market.toDomain(), nil
}

// GetOrderbook returns the current orderbook for ticker with both sides
// sorted ascending by price.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (domain.MarketSnapshot, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker))

	body, err := c.transport.Call(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook *KalshiOrderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("%w: decode orderbook: %v", domain.ErrMalformedResponse, err)
	}
	if resp.Orderbook == nil {
		return domain.MarketSnapshot{}, fmt.Errorf("%w: orderbook missing for %s", domain.ErrMalformedResponse, ticker)
	}

	yes, err := toLevels("yes", resp.Orderbook.Yes)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: orderbook %s: %w", ticker, err)
	}
	no, err := toLevels("no", resp.Orderbook.No)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kalshi: orderbook %s: %w", ticker, err)
	}

	return domain.MarketSnapshot{
		Ticker:    ticker,
		Yes:       yes,
		No:        no,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// OrderRequest is a limit order to submit.
type OrderRequest struct {
	Ticker        string
	ClientOrderID string
	Side          domain.Side
	Action        domain.Action
	Count         int64
	PriceCents    int64
}

// PlaceOrder submits a limit order. The price is sent as yes_price or
// no_price depending on the side, never both.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (domain.Order, error) {
	price := req.PriceCents
	order := KalshiOrder{
		Ticker:        req.Ticker,
		ClientOrderID: req.ClientOrderID,
		Action:        string(req.Action),
		Side:          string(req.Side),
		Type:          "limit",
		Count:         req.Count,
	}
	if req.Side == domain.SideNo {
		order.NoPrice = &price
	} else {
		order.YesPrice = &price
	}

	body, err := c.transport.Call(ctx, http.MethodPost, "/portfolio/orders", nil, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp KalshiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("%w: decode order response: %v", domain.ErrMalformedResponse, err)
	}
	o, err := resp.Order.toDomain(req.Count)
	if err != nil {
		return domain.Order{}, fmt.Errorf("kalshi: place order: %w", err)
	}
	if o.PriceCents == 0 {
		o.PriceCents = req.PriceCents
	}
	return o, nil
}

// GetOrder fetches the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(orderID))

	body, err := c.transport.Call(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("kalshi: get order %s: %w", orderID, err)
	}

	var resp KalshiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("%w: decode order: %v", domain.ErrMalformedResponse, err)
	}
	o, err := resp.Order.toDomain(0)
	if err != nil {
		return domain.Order{}, fmt.Errorf("kalshi: get order %s: %w", orderID, err)
	}
	return o, nil
}

// CancelOrder cancels an existing order by its ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(orderID))

	if _, err := c.transport.Call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetBalance returns the account's available balance.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	body, err := c.transport.Call(ctx, http.MethodGet, "/portfolio/balance", nil, nil)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: get balance: %w", err)
	}
	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("%w: decode balance: %v", domain.ErrMalformedResponse, err)
	}
	return domain.Balance{
		BalanceCents: resp.Balance,
		Dollars:      float64(resp.Balance) / 100,
	}, nil
}

// GetPositions returns exchange-reported positions, optionally narrowed to
// one ticker.
func (c *Client) GetPositions(ctx context.Context, ticker string) ([]domain.ExchangePosition, error) {
	params := url.Values{}
	if ticker != "" {
		params.Set("ticker", ticker)
	}
	body, err := c.transport.Call(ctx, http.MethodGet, "/portfolio/positions", params, nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get positions: %w", err)
	}

	var resp positionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode positions: %v", domain.ErrMalformedResponse, err)
	}
	raw := resp.MarketPositions
	if len(raw) == 0 {
		raw = resp.Positions
	}
	out := make([]domain.ExchangePosition, 0, len(raw))
	for _, p := range raw {
		out = append(out, domain.ExchangePosition{
			Ticker:         p.Ticker,
			Position:       p.Position,
			MarketExposure: p.MarketExposure,
			RealizedPnL:    p.RealizedPnL,
			TotalTraded:    p.TotalTraded,
			RestingOrders:  p.RestingOrders,
			FeesPaid:       p.FeesPaid,
		})
	}
	return out, nil
}
