// Package dhan implements the Dhan vendor adapter: credential rotation, the
// streaming connection pool with its binary feed decoder, and the thin REST
// quote fetch.
package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
	"exchange/internal/pubsub"
)

// Config carries the vendor settings consumed by the adapter.
type Config struct {
	Active             bool
	FeedURL            string
	QuoteURL           string
	APICredentials     []string
	AllowedConnections int
	EncryptionKey      string
	HeartbeatInterval  time.Duration
}

// Adapter is the Dhan implementation of the vendor-agnostic ExchangePort.
type Adapter struct {
	cfg    Config
	creds  *CredentialFactory
	pool   *ConnectionPool
	client *http.Client
	log    *logrus.Entry
}

var _ domain.ExchangePort = (*Adapter)(nil)

// NewAdapter expands the configured credentials and prepares the connection
// pool. No sockets are opened until Initialize.
func NewAdapter(cfg Config, events *pubsub.Subject[FeedEvent], logger *logrus.Logger) (*Adapter, error) {
	creds, err := NewCredentialFactory(cfg.APICredentials, cfg.AllowedConnections, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	opts := ConnectionOptions{HeartbeatInterval: cfg.HeartbeatInterval}
	return &Adapter{
		cfg:    cfg,
		creds:  creds,
		pool:   NewConnectionPool(creds, cfg.FeedURL, events, opts, logger),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger.WithField("component", "dhan_adapter"),
	}, nil
}

// Pool exposes the connection pool for the management API.
func (a *Adapter) Pool() *ConnectionPool {
	return a.pool
}

// Initialize opens the streaming connections. Inactive vendors stay idle.
func (a *Adapter) Initialize(ctx context.Context) error {
	if !a.cfg.Active {
		a.log.Info("vendor inactive, skipping initialization")
		return nil
	}
	return a.pool.Initialize(ctx)
}

// ExecuteSubscription routes the command into the connection pool.
func (a *Adapter) ExecuteSubscription(cmd domain.SubscriptionCommand) error {
	return a.pool.Execute(cmd)
}

// RestartSession restarts every pool connection.
func (a *Adapter) RestartSession() error {
	a.pool.Restart()
	return nil
}

// Shutdown stops the pool.
func (a *Adapter) Shutdown() {
	a.pool.Shutdown()
}

type restQuote struct {
	LastPrice    float64 `json:"last_price"`
	AveragePrice float64 `json:"average_price"`
	Volume       int64   `json:"volume"`
	OHLC         struct {
		Open  float64 `json:"open"`
		Close float64 `json:"close"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
	} `json:"ohlc"`
}

type restQuoteResponse struct {
	Status string                          `json:"status"`
	Data   map[string]map[string]restQuote `json:"data"`
}

// FetchQuotes pulls a point-in-time quote snapshot over REST using a random
// credential's headers. Streaming remains the authoritative price source;
// this exists for the facade's synchronous quote calls.
func (a *Adapter) FetchQuotes(ctx context.Context, instruments []domain.InstrumentInfo) (map[string]domain.MarketQuote, error) {
	if len(instruments) == 0 {
		return map[string]domain.MarketQuote{}, nil
	}
	cred, err := a.creds.RandomCredential()
	if err != nil {
		return nil, err
	}

	bySegment := make(map[string][]int64)
	for _, inst := range instruments {
		bySegment[inst.ExchangeSegment] = append(bySegment[inst.ExchangeSegment], inst.Token)
	}
	body, err := json.Marshal(bySegment)
	if err != nil {
		return nil, fmt.Errorf("marshal quote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.QuoteURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", cred.APIKey)
	req.Header.Set("client-id", cred.ClientID)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch quotes: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: quote endpoint returned %s", domain.ErrTransport, resp.Status)
	}

	var decoded restQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}

	quotes := make(map[string]domain.MarketQuote)
	for _, segment := range decoded.Data {
		for id, q := range segment {
			if _, err := strconv.Atoi(id); err != nil {
				continue
			}
			quotes[id] = domain.MarketQuote{
				InstrumentID:      id,
				LatestTradedPrice: q.LastPrice,
				AverageTradePrice: q.AveragePrice,
				Volume:            q.Volume,
				DayOpen:           q.OHLC.Open,
				DayClose:          q.OHLC.Close,
				DayHigh:           q.OHLC.High,
				DayLow:            q.OHLC.Low,
			}
		}
	}
	a.log.Infof("fetched %d quotes over rest", len(quotes))
	return quotes, nil
}
