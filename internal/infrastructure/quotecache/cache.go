// Package quotecache keeps the last seen quote per instrument in Redis so
// request-path services can answer without touching the vendor.
package quotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
)

const (
	keyPrefix    = "quote:"
	storeTimeout = 2 * time.Second
)

// Cache stores the latest quote per instrument with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

// NewCache wraps an existing Redis client.
func NewCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    logger.WithField("component", "quote_cache"),
	}
}

// Store writes the quote; errors are logged, the decode path never blocks
// on the cache.
func (c *Cache) Store(quote domain.MarketQuote) {
	body, err := json.Marshal(quote)
	if err != nil {
		c.log.Errorf("marshal quote: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.client.Set(ctx, keyPrefix+quote.InstrumentID, body, c.ttl).Err(); err != nil {
		c.log.WithField("instrument_id", quote.InstrumentID).Errorf("cache quote: %v", err)
	}
}

// Latest returns the cached quote for an instrument, if any.
func (c *Cache) Latest(ctx context.Context, instrumentID string) (domain.MarketQuote, error) {
	body, err := c.client.Get(ctx, keyPrefix+instrumentID).Bytes()
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("get cached quote: %w", err)
	}
	var quote domain.MarketQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return domain.MarketQuote{}, fmt.Errorf("decode cached quote: %w", err)
	}
	return quote, nil
}
