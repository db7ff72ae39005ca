package domain

// OrderType represents BUY/SELL direction of a trade request.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// OrderCategory selects the validation and fill rules applied to an order.
type OrderCategory string

const (
	CategoryMarket          OrderCategory = "MARKET"
	CategoryLimit           OrderCategory = "LIMIT"
	CategoryBracketAtMarket OrderCategory = "BRACKET_AT_MARKET"
	CategoryBracketAtLimit  OrderCategory = "BRACKET_AT_LIMIT"
	CategoryStopLoss        OrderCategory = "STOP_LOSS"
)

// OrderValidity restricts how long an order may rest.
type OrderValidity string

const (
	ValidityIntraday OrderValidity = "INTRADAY"
	ValidityRegular  OrderValidity = "REGULAR"
)

// TransactionStatus is the downstream lifecycle state of a transaction.
// COMPLETED and CANCELLED are terminal.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// TradeRequest is the immutable description of an order as submitted by the
// intake service. Price amendment is copy-on-write via WithAskedPrice.
type TradeRequest struct {
	LotSize       float64       `json:"lot_size"`
	OrderType     OrderType     `json:"order_type"`
	OrderCategory OrderCategory `json:"order_category"`
	StockID       int64         `json:"stock_id"`
	AskedPrice    float64       `json:"asked_price"`
	StopLossPrice float64       `json:"stop_loss_price"`
	TargetPrice   float64       `json:"target_price"`
	Validity      OrderValidity `json:"validity"`
	TransactionID int64         `json:"transaction_id"`
}

// WithAskedPrice returns a copy of the request with a new asked price.
func (r TradeRequest) WithAskedPrice(price float64) TradeRequest {
	r.AskedPrice = price
	return r
}

// TradeResponse is the unit stored in order books. PriceWhenOrderPlaced is a
// snapshot taken at placement (or amendment) time, used later to classify
// price-improved limit orders.
type TradeResponse struct {
	Request              TradeRequest `json:"request"`
	TransactionID        int64        `json:"transaction_id"`
	InstrumentID         string       `json:"instrument_id"`
	IsShortSell          bool         `json:"is_short_sell"`
	PriceWhenOrderPlaced float64      `json:"price_when_order_placed"`
}

// AskedPrice is a convenience accessor over the embedded request.
func (t TradeResponse) AskedPrice() float64 {
	return t.Request.AskedPrice
}

// StopLossPrice is a convenience accessor over the embedded request.
func (t TradeResponse) StopLossPrice() float64 {
	return t.Request.StopLossPrice
}

// TransactionUpdateRecord is the payload pushed to the downstream trade
// service when a transaction changes state.
type TransactionUpdateRecord struct {
	ID     int64             `json:"id"`
	Price  float64           `json:"price"`
	Status TransactionStatus `json:"status"`
}
