// Package tradesvc is the HTTP client for the downstream portfolio/trade
// persistence service.
package tradesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
)

// Client pushes transaction status updates. The contract is
// fire-and-forget: the matching engine logs failures and moves on.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

var _ domain.TradeService = (*Client)(nil)

// NewClient validates the base URL and builds the client.
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("trade service base url is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger.WithField("component", "trade_service"),
	}, nil
}

// UpdateTradeTransaction POSTs the status change for one transaction.
func (c *Client) UpdateTradeTransaction(ctx context.Context, record domain.TransactionUpdateRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal update record: %w", err)
	}

	url := c.baseURL + "/api/v1/transactions/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push transaction update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("trade service returned %s", resp.Status)
	}
	c.log.WithField("transaction_id", record.ID).Debug("transaction update delivered")
	return nil
}
