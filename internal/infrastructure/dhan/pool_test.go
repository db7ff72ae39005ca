package dhan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"exchange/internal/domain"
	"exchange/internal/pubsub"
)

var errTestWrite = errors.New("broken pipe")

func testFactory(t *testing.T, secrets []string, allowedConnections int) *CredentialFactory {
	t.Helper()
	raw := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		raw = append(raw, sealCredential(t, secret))
	}
	factory, err := NewCredentialFactory(raw, allowedConnections, testEncryptionKey)
	require.NoError(t, err)
	return factory
}

func testPool(t *testing.T, factory *CredentialFactory, dial dialer) *ConnectionPool {
	t.Helper()
	events := pubsub.NewSubject[FeedEvent]()
	pool := NewConnectionPool(factory, "wss://feed.test", events, fastOpts(), testLogger())
	pool.dial = dial
	t.Cleanup(pool.Shutdown)
	return pool
}

func waitAllConnected(t *testing.T, pool *ConnectionPool) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, info := range pool.Status() {
			if !info.Connected {
				return false
			}
		}
		return true
	}, time.Second, 2*time.Millisecond)
}

func TestInitializeOpensOneConnectionPerCredential(t *testing.T) {
	dial := &fakeDialer{conns: []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}}
	factory := testFactory(t, []string{"client-1:key-1"}, 3)
	pool := testPool(t, factory, dial)

	require.NoError(t, pool.Initialize(context.Background()))
	require.Len(t, pool.Status(), 3)
	waitAllConnected(t, pool)
}

func TestExecuteRoutesToLeastLoaded(t *testing.T) {
	dial := &fakeDialer{conns: []*fakeConn{newFakeConn(), newFakeConn()}}
	factory := testFactory(t, []string{"client-1:key-1"}, 2)
	pool := testPool(t, factory, dial)

	require.NoError(t, pool.Initialize(context.Background()))
	waitAllConnected(t, pool)

	require.NoError(t, pool.Execute(domain.Subscribe{Instruments: []domain.InstrumentInfo{
		{Token: 1333, ExchangeSegment: "NSE_EQ"},
		{Token: 2475, ExchangeSegment: "NSE_EQ"},
	}}))
	require.NoError(t, pool.Execute(domain.Subscribe{Instruments: []domain.InstrumentInfo{
		{Token: 9931, ExchangeSegment: "BSE_EQ"},
	}}))

	loads := map[int64]int{}
	for _, info := range pool.Status() {
		loads[info.SubscriptionCount]++
	}
	require.Equal(t, map[int64]int{2: 1, 1: 1}, loads)
}

func TestExecuteLazilyCreatesConnection(t *testing.T) {
	factory := testFactory(t, []string{"client-1:key-1"}, 1)
	pool := testPool(t, factory, &fakeDialer{})

	// No Initialize: dispatch must still find a connection to route to.
	err := pool.Execute(domain.Subscribe{Instruments: []domain.InstrumentInfo{
		{Token: 1333, ExchangeSegment: "NSE_EQ"},
	}})
	require.NoError(t, err)
	require.Len(t, pool.Status(), 1)
}

func TestExecuteOpensBreakerAfterRepeatedFailures(t *testing.T) {
	conns := make([]*fakeConn, 0, 8)
	for i := 0; i < 8; i++ {
		conn := newFakeConn()
		conn.writeErr = errTestWrite
		conns = append(conns, conn)
	}
	dial := &fakeDialer{conns: conns}
	factory := testFactory(t, []string{"client-1:key-1"}, 1)
	pool := testPool(t, factory, dial)

	require.NoError(t, pool.Initialize(context.Background()))

	instruments := []domain.InstrumentInfo{{Token: 1333, ExchangeSegment: "NSE_EQ"}}
	for i := 0; i < breakerErrorThreshold; i++ {
		waitAllConnected(t, pool)
		require.ErrorIs(t, pool.Execute(domain.Subscribe{Instruments: instruments}), domain.ErrTransport)
	}

	err := pool.Execute(domain.Subscribe{Instruments: instruments})
	require.ErrorIs(t, err, domain.ErrDispatch)
}

func TestRestartPreservesConnectionCount(t *testing.T) {
	dial := &fakeDialer{conns: []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn(), newFakeConn()}}
	factory := testFactory(t, []string{"client-1:key-1"}, 2)
	pool := testPool(t, factory, dial)

	require.NoError(t, pool.Initialize(context.Background()))
	waitAllConnected(t, pool)

	pool.Restart()
	waitAllConnected(t, pool)
	require.Len(t, pool.Status(), 2)
}
