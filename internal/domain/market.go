package domain

// Market is the subset of exchange market metadata the operator needs to
// pick and watch a ticker.
type Market struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Status         string `json:"status"`
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

// Balance is the account's available cash.
type Balance struct {
	BalanceCents int64   `json:"balance_cents"`
	Dollars      float64 `json:"balance"`
}

// ExchangePosition is a position as the exchange reports it.
type ExchangePosition struct {
	Ticker         string `json:"ticker"`
	Position       int64  `json:"position"`
	MarketExposure int64  `json:"market_exposure"`
	RealizedPnL    int64  `json:"realized_pnl"`
	TotalTraded    int64  `json:"total_traded"`
	RestingOrders  int64  `json:"resting_orders_count"`
	FeesPaid       int64  `json:"fees_paid"`
}
