package application

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"exchange/internal/domain"
)

type stubExchange struct {
	initialized   bool
	restarted     bool
	subscriptions []domain.SubscriptionCommand
	fetched       []domain.InstrumentInfo
	quotes        map[string]domain.MarketQuote
	execErr       error
}

func (s *stubExchange) Initialize(context.Context) error {
	s.initialized = true
	return nil
}

func (s *stubExchange) ExecuteSubscription(cmd domain.SubscriptionCommand) error {
	if s.execErr != nil {
		return s.execErr
	}
	s.subscriptions = append(s.subscriptions, cmd)
	return nil
}

func (s *stubExchange) FetchQuotes(_ context.Context, instruments []domain.InstrumentInfo) (map[string]domain.MarketQuote, error) {
	s.fetched = instruments
	return s.quotes, nil
}

func (s *stubExchange) RestartSession() error {
	s.restarted = true
	return nil
}

type stubMatcher struct {
	commands []domain.TransactionCommand
}

func (m *stubMatcher) ExecuteTransaction(cmd domain.TransactionCommand) {
	m.commands = append(m.commands, cmd)
}

func (m *stubMatcher) OnPriceUpdate(string, domain.MarketQuote) {}

func newTestFacade(vendor string) (*ExchangeFacade, *stubExchange, *stubMatcher) {
	exchange := &stubExchange{quotes: map[string]domain.MarketQuote{"1333": {InstrumentID: "1333"}}}
	matcher := &stubMatcher{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	facade := NewExchangeFacade(vendor, map[string]domain.ExchangePort{"dhan": exchange}, matcher, logger)
	return facade, exchange, matcher
}

func TestFacadeRejectsUnknownVendor(t *testing.T) {
	facade, _, _ := newTestFacade("zerodha")

	require.ErrorIs(t, facade.Initialize(context.Background()), domain.ErrConfiguration)
	require.ErrorIs(t, facade.Subscribe(nil), domain.ErrConfiguration)
	require.ErrorIs(t, facade.RestartSocket(), domain.ErrConfiguration)
	_, err := facade.GetQuotes(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestFacadeRoutesSubscriptions(t *testing.T) {
	facade, exchange, _ := newTestFacade("dhan")

	instruments := []domain.InstrumentInfo{{Token: 1333, ExchangeSegment: "NSE_EQ"}}
	require.NoError(t, facade.Subscribe(instruments))
	require.NoError(t, facade.Unsubscribe(instruments))

	require.Len(t, exchange.subscriptions, 2)
	require.IsType(t, domain.Subscribe{}, exchange.subscriptions[0])
	require.IsType(t, domain.Unsubscribe{}, exchange.subscriptions[1])
}

func TestFacadeInitializeAndRestart(t *testing.T) {
	facade, exchange, _ := newTestFacade("dhan")

	require.NoError(t, facade.Initialize(context.Background()))
	require.True(t, exchange.initialized)

	require.NoError(t, facade.RestartSocket())
	require.True(t, exchange.restarted)
}

func TestGetQuotesRefreshesSubscription(t *testing.T) {
	facade, exchange, _ := newTestFacade("dhan")

	instruments := []domain.InstrumentInfo{{Token: 1333, ExchangeSegment: "NSE_EQ"}}
	quotes, err := facade.GetQuotes(context.Background(), instruments)
	require.NoError(t, err)
	require.Contains(t, quotes, "1333")
	require.Equal(t, instruments, exchange.fetched)
	require.Len(t, exchange.subscriptions, 1)
}

func TestGetQuotesTolerateRefreshFailure(t *testing.T) {
	facade, exchange, _ := newTestFacade("dhan")
	exchange.execErr = domain.ErrDispatch

	quotes, err := facade.GetQuotes(context.Background(), []domain.InstrumentInfo{{Token: 1333, ExchangeSegment: "NSE_EQ"}})
	require.NoError(t, err)
	require.Contains(t, quotes, "1333")
}

func TestPlaceOrderForwardsToMatcher(t *testing.T) {
	facade, _, matcher := newTestFacade("dhan")

	cmd := domain.UpdateStatus{TransactionID: 7, Status: domain.StatusCancelled}
	facade.PlaceOrder(cmd)

	require.Equal(t, []domain.TransactionCommand{cmd}, matcher.commands)
}

func TestCommandBusUnknownVendor(t *testing.T) {
	bus := NewCommandBus(map[string]domain.ExchangePort{})
	err := bus.Dispatch("dhan", domain.Subscribe{})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
