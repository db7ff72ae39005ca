package domain

// InstrumentInfo identifies a tradable instrument on a vendor feed.
// Identity is the token; the exchange segment is required when routing
// subscription requests to the vendor.
type InstrumentInfo struct {
	Token           int64  `json:"token"`
	ExchangeSegment string `json:"exchange_segment"`
	TradingSymbol   string `json:"trading_symbol"`
}

// Credential is one usable connection identity for a vendor socket,
// produced by decrypting a raw configured secret.
type Credential struct {
	ClientID string
	APIKey   string
}
