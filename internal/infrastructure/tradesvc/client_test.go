package tradesvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"exchange/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("", time.Second, testLogger())
	require.Error(t, err)
}

func TestUpdateTradeTransaction(t *testing.T) {
	var gotPath string
	var gotRecord domain.TransactionUpdateRecord
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRecord))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", time.Second, testLogger())
	require.NoError(t, err)

	record := domain.TransactionUpdateRecord{ID: 7, Price: 101.5, Status: domain.StatusCompleted}
	require.NoError(t, client.UpdateTradeTransaction(context.Background(), record))
	require.Equal(t, "/api/v1/transactions/status", gotPath)
	require.Equal(t, record, gotRecord)
}

func TestUpdateTradeTransactionServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, time.Second, testLogger())
	require.NoError(t, err)

	err = client.UpdateTradeTransaction(context.Background(), domain.TransactionUpdateRecord{ID: 7})
	require.Error(t, err)
}

func TestUpdateTradeTransactionRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, time.Second, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = client.UpdateTradeTransaction(ctx, domain.TransactionUpdateRecord{ID: 7})
	require.Error(t, err)
}
