package domain

// DepthLevel is one level of the five-deep market picture carried by a
// quote packet.
type DepthLevel struct {
	BidQuantity int64   `json:"bid_quantity"`
	AskQuantity int64   `json:"ask_quantity"`
	BidOrders   int32   `json:"bid_orders"`
	AskOrders   int32   `json:"ask_orders"`
	BidPrice    float64 `json:"bid_price"`
	AskPrice    float64 `json:"ask_price"`
}

// MarketQuote is one decoded price tick. A zero LatestTradedPrice marks a
// keepalive/noise packet and is dropped before fan-out.
type MarketQuote struct {
	InstrumentID       string       `json:"instrument_id"`
	LatestTradedPrice  float64      `json:"latest_traded_price"`
	LastTradedQuantity int64        `json:"last_traded_quantity"`
	LastTradeTime      int64        `json:"last_trade_time"`
	AverageTradePrice  float64      `json:"average_trade_price"`
	Volume             int64        `json:"volume"`
	TotalSellQuantity  int64        `json:"total_sell_quantity"`
	TotalBuyQuantity   int64        `json:"total_buy_quantity"`
	DayOpen            float64      `json:"day_open"`
	DayClose           float64      `json:"day_close"`
	DayHigh            float64      `json:"day_high"`
	DayLow             float64      `json:"day_low"`
	BestBidPrice       float64      `json:"best_bid_price"`
	BestAskPrice       float64      `json:"best_ask_price"`
	Depth              []DepthLevel `json:"depth,omitempty"`
}

// CrossingPrice returns the opposing-side best depth price used to test a
// resting order for a fill: buys cross against the best ask, sells against
// the best bid. Falls back to the last traded price when the feed carried
// no depth for that side.
func (q MarketQuote) CrossingPrice(isBuy bool) float64 {
	if isBuy {
		if q.BestAskPrice > 0 {
			return q.BestAskPrice
		}
	} else {
		if q.BestBidPrice > 0 {
			return q.BestBidPrice
		}
	}
	return q.LatestTradedPrice
}
