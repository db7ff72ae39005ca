package domain

import "context"

// ExchangePort is the vendor-agnostic surface of one exchange adapter.
type ExchangePort interface {
	Initialize(ctx context.Context) error
	ExecuteSubscription(cmd SubscriptionCommand) error
	FetchQuotes(ctx context.Context, instruments []InstrumentInfo) (map[string]MarketQuote, error)
	RestartSession() error
}

// OrderMatchingPort is the surface the rest of the system uses to drive the
// matching engine.
type OrderMatchingPort interface {
	ExecuteTransaction(cmd TransactionCommand)
	OnPriceUpdate(instrumentID string, quote MarketQuote)
}

// TradeService is the downstream portfolio/trade persistence collaborator.
// Pushes are fire-and-forget: failures are logged by the caller, never
// propagated into the matching path.
type TradeService interface {
	UpdateTradeTransaction(ctx context.Context, record TransactionUpdateRecord) error
}
