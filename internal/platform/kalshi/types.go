package kalshi

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	MemberID string `json:"member_id"`
}

// KalshiMarket represents a market as returned by the Kalshi REST API.
type KalshiMarket struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Status         string `json:"status"` // "open", "closed", "settled"
	YesBid         int64  `json:"yes_bid"`
	YesAsk         int64  `json:"yes_ask"`
	NoBid          int64  `json:"no_bid"`
	NoAsk          int64  `json:"no_ask"`
	LastPrice      int64  `json:"last_price"`
	Volume         int64  `json:"volume"`
	OpenInterest   int64  `json:"open_interest"`
	CloseTime      string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
}

func (m KalshiMarket) toDomain() domain.Market {
	return domain.Market{
		Ticker:         m.Ticker,
		EventTicker:    m.EventTicker,
		Title:          m.Title,
		Subtitle:       m.Subtitle,
		Status:         m.Status,
		YesBid:         m.YesBid,
		YesAsk:         m.YesAsk,
		NoBid:          m.NoBid,
		NoAsk:          m.NoAsk,
		LastPrice:      m.LastPrice,
		Volume:         m.Volume,
		OpenInterest:   m.OpenInterest,
		CloseTime:      m.CloseTime,
		ExpirationTime: m.ExpirationTime,
	}
}

// KalshiOrderbook is the raw orderbook payload. Each side is a list of
// [price_cents, quantity] pairs; a side with no bids may be null.
type KalshiOrderbook struct {
	Yes [][]int64 `json:"yes"`
	No  [][]int64 `json:"no"`
}

// toLevels validates raw pairs and returns them sorted ascending by price.
func toLevels(side string, raw [][]int64) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: %s level %d has %d fields", domain.ErrMalformedResponse, side, i, len(pair))
		}
		price, qty := pair[0], pair[1]
		if price < domain.MinPriceCents || price > domain.MaxPriceCents {
			return nil, fmt.Errorf("%w: %s level %d price %d out of range", domain.ErrMalformedResponse, side, i, price)
		}
		if qty < 0 {
			return nil, fmt.Errorf("%w: %s level %d negative quantity %d", domain.ErrMalformedResponse, side, i, qty)
		}
		levels = append(levels, domain.PriceLevel{PriceCents: price, Quantity: qty})
	}
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].PriceCents < levels[j].PriceCents
	})
	return levels, nil
}

// KalshiOrder represents an order to be placed on the Kalshi exchange.
// Exactly one of YesPrice / NoPrice is set.
type KalshiOrder struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
}

// KalshiOrderDetail is the order object returned by create/get/cancel.
type KalshiOrderDetail struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	CreatedTime    string `json:"created_time"`
}

// KalshiOrderResponse wraps a single order.
type KalshiOrderResponse struct {
	Order *KalshiOrderDetail `json:"order"`
}

func (o *KalshiOrderDetail) toDomain(count int64) (domain.Order, error) {
	if o == nil || o.OrderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order without order_id", domain.ErrMalformedResponse)
	}
	if o.Status == "" {
		return domain.Order{}, fmt.Errorf("%w: order %s without status", domain.ErrMalformedResponse, o.OrderID)
	}
	side := domain.Side(o.Side)
	price := o.YesPrice
	if side == domain.SideNo {
		price = o.NoPrice
	}
	placed := time.Now().UTC()
	if o.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, o.CreatedTime); err == nil {
			placed = t
		}
	}
	return domain.Order{
		OrderID:        o.OrderID,
		ClientOrderID:  o.ClientOrderID,
		Ticker:         o.Ticker,
		Side:           side,
		Action:         domain.Action(o.Action),
		Count:          count,
		PriceCents:     price,
		Status:         domain.OrderStatus(o.Status),
		RemainingCount: o.RemainingCount,
		PlacedAt:       placed,
	}, nil
}

// KalshiErrorResponse represents a Kalshi API error response. The exchange
// has used both a flat and a nested shape.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e KalshiErrorResponse) codeAndMessage() (string, string) {
	if e.Error != nil {
		return e.Error.Code, e.Error.Message
	}
	return e.Code, e.Message
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type positionDTO struct {
	Ticker         string `json:"ticker"`
	Position       int64  `json:"position"`
	MarketExposure int64  `json:"market_exposure"`
	RealizedPnL    int64  `json:"realized_pnl"`
	TotalTraded    int64  `json:"total_traded"`
	RestingOrders  int64  `json:"resting_orders_count"`
	FeesPaid       int64  `json:"fees_paid"`
}

type positionsResponse struct {
	MarketPositions []positionDTO `json:"market_positions"`
	Positions       []positionDTO `json:"positions"`
	Cursor          string        `json:"cursor"`
}

// --------------------------------------------------------------------------
// Kalshi WebSocket DTOs
// --------------------------------------------------------------------------

// KalshiWSMessage is the envelope for Kalshi WebSocket messages.
type KalshiWSMessage struct {
	Type string          `json:"type"` // "ticker", "subscribed", "error", ...
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

// KalshiWSTicker is the payload of the "ticker" channel.
type KalshiWSTicker struct {
	Ticker string `json:"market_ticker"`
	Price  int64  `json:"price"`
	YesBid int64  `json:"yes_bid"`
	YesAsk int64  `json:"yes_ask"`
	TS     int64  `json:"ts"`
}

// KalshiWSSubscribeCmd is the command sent to subscribe to Kalshi WebSocket channels.
type KalshiWSSubscribeCmd struct {
	ID     int64                   `json:"id"`
	Cmd    string                  `json:"cmd"` // "subscribe" or "unsubscribe"
	Params KalshiWSSubscribeParams `json:"params"`
}

// KalshiWSSubscribeParams defines the subscription parameters.
type KalshiWSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}

// TickerUpdate is a best-bid update for both sides of a market. The NO bid
// is the complement of the YES ask.
type TickerUpdate struct {
	Ticker   string
	YesBid   int64
	NoBid    int64
	Received time.Time
}

func (t KalshiWSTicker) toUpdate() TickerUpdate {
	u := TickerUpdate{Ticker: t.Ticker, YesBid: t.YesBid, Received: time.Now().UTC()}
	if t.YesAsk > 0 {
		u.NoBid = 100 - t.YesAsk
	}
	if t.TS > 0 {
		u.Received = time.Unix(t.TS, 0).UTC()
	}
	return u
}
