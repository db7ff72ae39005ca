package domain

// SubscriptionCommand is a request routed to exactly one vendor connection
// pool. The two variants are Subscribe and Unsubscribe.
type SubscriptionCommand interface {
	isSubscriptionCommand()
}

// Subscribe asks the vendor feed to start streaming the given instruments.
type Subscribe struct {
	Instruments []InstrumentInfo
}

// Unsubscribe asks the vendor feed to stop streaming the given instruments.
type Unsubscribe struct {
	Instruments []InstrumentInfo
}

func (Subscribe) isSubscriptionCommand()   {}
func (Unsubscribe) isSubscriptionCommand() {}

// TransactionCommand is one unit of work for the matching engine's command
// queue. Variants: PlaceBuy, PlaceSell, UpdateStatus.
type TransactionCommand interface {
	isTransactionCommand()
}

// PlaceBuy places a resting buy order.
type PlaceBuy struct {
	Response TradeResponse
}

// PlaceSell places a resting sell order.
type PlaceSell struct {
	Response TradeResponse
}

// UpdateStatus forwards a status change for an existing transaction to the
// downstream trade service. It does not touch the in-memory books.
type UpdateStatus struct {
	TransactionID int64
	Status        TransactionStatus
	Price         float64
}

func (PlaceBuy) isTransactionCommand()     {}
func (PlaceSell) isTransactionCommand()    {}
func (UpdateStatus) isTransactionCommand() {}
