package dhan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"exchange/internal/domain"
	"exchange/internal/pubsub"
)

func testAdapter(t *testing.T, quoteURL string) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(Config{
		Active:             true,
		FeedURL:            "wss://feed.test",
		QuoteURL:           quoteURL,
		APICredentials:     []string{sealCredential(t, "client-1:key-1")},
		AllowedConnections: 1,
		EncryptionKey:      testEncryptionKey,
		HeartbeatInterval:  -1,
	}, pubsub.NewSubject[FeedEvent](), testLogger())
	require.NoError(t, err)
	t.Cleanup(adapter.Shutdown)
	return adapter
}

func TestNewAdapterRejectsBadCredentials(t *testing.T) {
	_, err := NewAdapter(Config{
		APICredentials: []string{"not-a-sealed-secret"},
		EncryptionKey:  testEncryptionKey,
	}, pubsub.NewSubject[FeedEvent](), testLogger())
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestFetchQuotes(t *testing.T) {
	var gotBody map[string][]int64
	var gotToken, gotClient string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("access-token")
		gotClient = r.Header.Get("client-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		response := restQuoteResponse{Status: "success"}
		response.Data = map[string]map[string]restQuote{
			"NSE_EQ": {
				"1333": {LastPrice: 101.5, Volume: 4200},
				"oops": {LastPrice: 1},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	adapter := testAdapter(t, server.URL)
	quotes, err := adapter.FetchQuotes(context.Background(), []domain.InstrumentInfo{
		{Token: 1333, ExchangeSegment: "NSE_EQ"},
		{Token: 2475, ExchangeSegment: "NSE_EQ"},
	})
	require.NoError(t, err)

	require.Equal(t, "key-1", gotToken)
	require.Equal(t, "client-1", gotClient)
	require.Equal(t, map[string][]int64{"NSE_EQ": {1333, 2475}}, gotBody)

	// Non-numeric instrument ids in the vendor payload are skipped.
	require.Len(t, quotes, 1)
	require.InDelta(t, 101.5, quotes["1333"].LatestTradedPrice, 1e-6)
	require.Equal(t, int64(4200), quotes["1333"].Volume)
}

func TestFetchQuotesEmptyInstrumentList(t *testing.T) {
	adapter := testAdapter(t, "http://unused.test")
	quotes, err := adapter.FetchQuotes(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, quotes)
}

func TestFetchQuotesVendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := testAdapter(t, server.URL)
	_, err := adapter.FetchQuotes(context.Background(), []domain.InstrumentInfo{{Token: 1333, ExchangeSegment: "NSE_EQ"}})
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestInactiveAdapterSkipsInitialize(t *testing.T) {
	adapter, err := NewAdapter(Config{
		Active:         false,
		APICredentials: []string{sealCredential(t, "client-1:key-1")},
		EncryptionKey:  testEncryptionKey,
	}, pubsub.NewSubject[FeedEvent](), testLogger())
	require.NoError(t, err)
	t.Cleanup(adapter.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, adapter.Initialize(ctx))
	require.Empty(t, adapter.Pool().Status())
}
