// Package broadcast publishes decoded price ticks to a RabbitMQ fanout
// exchange for downstream UI broadcast consumers.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
)

const publishTimeout = 5 * time.Second

// Publisher pushes each tick to a fanout exchange. It is a fan-out
// consumer: failures are logged and never propagated into the decode path.
type Publisher struct {
	ch       *amqp.Channel
	exchange string
	log      *logrus.Entry
}

// NewPublisher declares the fanout exchange on a fresh channel.
func NewPublisher(conn *amqp.Connection, exchange string, logger *logrus.Logger) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("rabbitmq connection is required")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is required")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		log:      logger.WithField("component", "tick_broadcast"),
	}, nil
}

// Publish sends one quote as JSON. Safe to call from the fan-out path.
func (p *Publisher) Publish(quote domain.MarketQuote) {
	body, err := json.Marshal(quote)
	if err != nil {
		p.log.Errorf("marshal quote: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		p.log.WithField("instrument_id", quote.InstrumentID).Errorf("publish tick: %v", err)
	}
}

// PublishBatch sends a group of quotes as one JSON array message. Used by
// the QuoteBatcher flush path; errors propagate so the batcher can log them.
func (p *Publisher) PublishBatch(ctx context.Context, quotes []domain.MarketQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	body, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("marshal quote batch: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish tick batch: %w", err)
	}
	return nil
}

// Close releases the channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}
