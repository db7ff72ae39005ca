// Package application routes vendor-agnostic calls to the active vendor's
// adapter and forwards order flow into the matching engine.
package application

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
)

// CommandBus dispatches subscription commands to the adapter registered for
// the target vendor.
type CommandBus struct {
	handlers map[string]func(domain.SubscriptionCommand) error
}

// NewCommandBus indexes the given adapters by vendor name.
func NewCommandBus(adapters map[string]domain.ExchangePort) *CommandBus {
	handlers := make(map[string]func(domain.SubscriptionCommand) error, len(adapters))
	for vendor, adapter := range adapters {
		handlers[vendor] = adapter.ExecuteSubscription
	}
	return &CommandBus{handlers: handlers}
}

// Dispatch routes the command to the named vendor.
func (b *CommandBus) Dispatch(vendor string, cmd domain.SubscriptionCommand) error {
	handler, ok := b.handlers[vendor]
	if !ok {
		return fmt.Errorf("%w: no handler for vendor %q", domain.ErrConfiguration, vendor)
	}
	return handler(cmd)
}

// ExchangeFacade is the thin vendor-agnostic entry point over the active
// vendor's pool and the matching engine.
type ExchangeFacade struct {
	vendor   string
	adapters map[string]domain.ExchangePort
	bus      *CommandBus
	matching domain.OrderMatchingPort
	log      *logrus.Entry
}

// NewExchangeFacade wires the facade for the configured vendor.
func NewExchangeFacade(vendor string, adapters map[string]domain.ExchangePort, matching domain.OrderMatchingPort, logger *logrus.Logger) *ExchangeFacade {
	return &ExchangeFacade{
		vendor:   vendor,
		adapters: adapters,
		bus:      NewCommandBus(adapters),
		matching: matching,
		log:      logger.WithField("component", "exchange_facade"),
	}
}

// Initialize brings up the configured vendor's streaming session.
func (f *ExchangeFacade) Initialize(ctx context.Context) error {
	adapter, err := f.adapter()
	if err != nil {
		return err
	}
	if err := adapter.Initialize(ctx); err != nil {
		return err
	}
	f.log.Infof("initialized exchange for vendor %s", f.vendor)
	return nil
}

// Subscribe streams the given instruments from the configured vendor.
func (f *ExchangeFacade) Subscribe(instruments []domain.InstrumentInfo) error {
	if _, err := f.adapter(); err != nil {
		return err
	}
	if err := f.bus.Dispatch(f.vendor, domain.Subscribe{Instruments: instruments}); err != nil {
		return err
	}
	f.log.Infof("subscribed to %d instruments for vendor %s", len(instruments), f.vendor)
	return nil
}

// Unsubscribe stops streaming the given instruments.
func (f *ExchangeFacade) Unsubscribe(instruments []domain.InstrumentInfo) error {
	if _, err := f.adapter(); err != nil {
		return err
	}
	return f.bus.Dispatch(f.vendor, domain.Unsubscribe{Instruments: instruments})
}

// GetQuotes fetches a synchronous quote snapshot over the vendor's REST
// surface and refreshes the streaming subscriptions for those instruments.
func (f *ExchangeFacade) GetQuotes(ctx context.Context, instruments []domain.InstrumentInfo) (map[string]domain.MarketQuote, error) {
	adapter, err := f.adapter()
	if err != nil {
		return nil, err
	}
	quotes, err := adapter.FetchQuotes(ctx, instruments)
	if err != nil {
		return nil, err
	}
	if err := f.bus.Dispatch(f.vendor, domain.Subscribe{Instruments: instruments}); err != nil {
		f.log.Warnf("quote subscription refresh failed: %v", err)
	}
	return quotes, nil
}

// PlaceOrder forwards the transaction command to the matching engine.
func (f *ExchangeFacade) PlaceOrder(cmd domain.TransactionCommand) {
	f.matching.ExecuteTransaction(cmd)
}

// RestartSocket restarts the vendor's streaming session.
func (f *ExchangeFacade) RestartSocket() error {
	adapter, err := f.adapter()
	if err != nil {
		return err
	}
	if err := adapter.RestartSession(); err != nil {
		return err
	}
	f.log.Infof("restarted streaming session for vendor %s", f.vendor)
	return nil
}

func (f *ExchangeFacade) adapter() (domain.ExchangePort, error) {
	adapter, ok := f.adapters[f.vendor]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported vendor %q", domain.ErrConfiguration, f.vendor)
	}
	return adapter, nil
}
