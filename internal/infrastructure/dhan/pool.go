package dhan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
	"exchange/internal/pubsub"
)

const (
	breakerErrorThreshold   = 3
	breakerSuccessThreshold = 1
	breakerCooldown         = 10 * time.Second
)

// ConnectionPool owns the set of vendor connections, routes subscription
// commands to the least-loaded one and guards dispatch with a circuit
// breaker so a degrading vendor is not hammered.
type ConnectionPool struct {
	creds   *CredentialFactory
	feedURL string
	dial    dialer
	events  *pubsub.Subject[FeedEvent]
	opts    ConnectionOptions
	logger  *logrus.Logger
	log     *logrus.Entry
	breaker *breaker.Breaker

	mu    sync.Mutex
	conns []*Connection
	ctx   context.Context
}

// NewConnectionPool builds an empty pool; Initialize opens the sockets.
func NewConnectionPool(creds *CredentialFactory, feedURL string, events *pubsub.Subject[FeedEvent], opts ConnectionOptions, logger *logrus.Logger) *ConnectionPool {
	p := &ConnectionPool{
		creds:   creds,
		feedURL: feedURL,
		dial:    gorillaDialer{handshakeTimeout: 10 * time.Second},
		events:  events,
		opts:    opts,
		logger:  logger,
		log:     logger.WithField("component", "dhan_pool"),
		breaker: breaker.New(breakerErrorThreshold, breakerSuccessThreshold, breakerCooldown),
	}
	if p.opts.OnFailed == nil {
		p.opts.OnFailed = func(c *Connection) {
			p.log.WithField("connection_id", c.id).Error("connection abandoned after exhausting reconnect attempts")
		}
	}
	return p
}

// Initialize clears any existing connections and opens one per credential.
func (p *ConnectionPool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	old := p.conns
	p.conns = nil
	p.ctx = ctx
	p.mu.Unlock()

	for _, conn := range old {
		conn.Stop()
	}

	creds := p.creds.Credentials()
	conns := make([]*Connection, 0, len(creds))
	for _, cred := range creds {
		conn := p.newConnection(cred)
		conn.Start(ctx)
		conns = append(conns, conn)
	}

	p.mu.Lock()
	p.conns = conns
	p.mu.Unlock()

	p.log.Infof("initialized connection pool with %d connections", len(conns))
	return nil
}

// Execute routes the subscription command to the least-loaded connection
// through the circuit breaker. While the breaker is open, dispatch fails
// fast with ErrDispatch and connection state is untouched.
func (p *ConnectionPool) Execute(cmd domain.SubscriptionCommand) error {
	conn, err := p.leastLoaded()
	if err != nil {
		return err
	}

	err = p.breaker.Run(func() error {
		switch c := cmd.(type) {
		case domain.Subscribe:
			return conn.Subscribe(c.Instruments)
		case domain.Unsubscribe:
			return conn.Unsubscribe(c.Instruments)
		default:
			return fmt.Errorf("%w: unknown subscription command %T", domain.ErrConfiguration, cmd)
		}
	})
	if errors.Is(err, breaker.ErrBreakerOpen) {
		return fmt.Errorf("%w: circuit breaker open", domain.ErrDispatch)
	}
	return err
}

// Restart instructs every connection to drop and re-establish its
// transport. Credential assignments are preserved.
func (p *ConnectionPool) Restart() {
	for _, conn := range p.snapshot() {
		conn.Restart()
	}
	p.log.Info("restarted all pool connections")
}

// Shutdown stops every connection.
func (p *ConnectionPool) Shutdown() {
	for _, conn := range p.snapshot() {
		conn.Stop()
	}
}

// Status snapshots every connection for the management API.
func (p *ConnectionPool) Status() []ConnectionInfo {
	conns := p.snapshot()
	infos := make([]ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		infos = append(infos, conn.Info())
	}
	return infos
}

// leastLoaded picks the connection with the fewest live subscriptions,
// first found winning ties. With no connections yet, one is created
// lazily from a random credential.
func (p *ConnectionPool) leastLoaded() (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Connection
	for _, conn := range p.conns {
		if best == nil || conn.Load() < best.Load() {
			best = conn
		}
	}
	if best != nil {
		return best, nil
	}

	cred, err := p.creds.RandomCredential()
	if err != nil {
		return nil, err
	}
	conn := p.newConnection(cred)
	if p.ctx != nil {
		conn.Start(p.ctx)
	}
	p.conns = append(p.conns, conn)
	p.log.Info("lazily created pool connection")
	return conn, nil
}

func (p *ConnectionPool) snapshot() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, len(p.conns))
	copy(out, p.conns)
	return out
}

func (p *ConnectionPool) newConnection(cred domain.Credential) *Connection {
	url := fmt.Sprintf("%s?version=2&token=%s&clientId=%s&authType=2", p.feedURL, cred.APIKey, cred.ClientID)
	return newConnection(cred, url, p.dial, p.events, p.opts, p.logger)
}
