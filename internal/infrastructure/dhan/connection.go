package dhan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
	"exchange/internal/pubsub"
)

const (
	subscribeRequestCode   = 21
	unsubscribeRequestCode = 22

	// Vendor limit on ping payloads.
	maxPingPayload = 125

	defaultHeartbeatInterval    = 30 * time.Second
	defaultInitialBackoff       = 500 * time.Millisecond
	defaultMaxReconnectAttempts = 5

	writeTimeout = 5 * time.Second
)

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateInit ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// wireConn is the subset of the websocket connection the state machine
// needs; tests substitute a fake.
type wireConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type dialer interface {
	Dial(ctx context.Context, url string) (wireConn, error)
}

type gorillaDialer struct {
	handshakeTimeout time.Duration
}

func (d gorillaDialer) Dial(ctx context.Context, url string) (wireConn, error) {
	wsDialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := wsDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrTransport, url, err)
	}
	return conn, nil
}

// ConnectionOptions tunes the state machine. Zero values select defaults;
// a negative HeartbeatInterval disables the heartbeat.
type ConnectionOptions struct {
	HeartbeatInterval    time.Duration
	InitialBackoff       time.Duration
	MaxReconnectAttempts int

	// OnFailed is invoked once when the connection exhausts its reconnect
	// attempts and goes terminal.
	OnFailed func(*Connection)
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = defaultHeartbeatInterval
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = defaultInitialBackoff
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	return o
}

// ConnectionInfo is a point-in-time snapshot for the management API.
type ConnectionInfo struct {
	ID                string    `json:"id"`
	State             string    `json:"state"`
	Connected         bool      `json:"connected"`
	StartTime         time.Time `json:"start_time"`
	LastReceivedTime  time.Time `json:"last_received_time"`
	LastPingSent      time.Time `json:"last_ping_sent"`
	LastPongReceived  time.Time `json:"last_pong_received"`
	SubscriptionCount int64     `json:"subscription_count"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
}

// Connection is one persistent duplex channel to the vendor feed. It owns
// its transport, heartbeat and reconnect state machine:
//
//	INIT -> CONNECTING -> CONNECTED <-> RECONNECTING
//	RECONNECTING -> FAILED after the attempt cap
//
// Backoff doubles from InitialBackoff per consecutive failure and resets on
// success. FAILED is terminal until an explicit Restart.
type Connection struct {
	id     string
	cred   domain.Credential
	url    string
	dial   dialer
	events *pubsub.Subject[FeedEvent]
	log    *logrus.Entry
	opts   ConnectionOptions

	state         atomic.Int32
	subscriptions atomic.Int64

	mu                sync.Mutex
	conn              wireConn
	baseCtx           context.Context
	cancel            context.CancelFunc
	running           bool
	reconnectAttempts int
	backoff           *backoff.ExponentialBackOff

	startTime        time.Time
	lastReceivedTime time.Time
	lastPingSent     time.Time
	lastPongReceived time.Time
}

func newConnection(cred domain.Credential, url string, dial dialer, events *pubsub.Subject[FeedEvent], opts ConnectionOptions, logger *logrus.Logger) *Connection {
	opts = opts.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialBackoff
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = opts.InitialBackoff << uint(opts.MaxReconnectAttempts)
	bo.Reset()

	c := &Connection{
		id:      uuid.NewString(),
		cred:    cred,
		url:     url,
		dial:    dial,
		events:  events,
		opts:    opts,
		backoff: bo,
	}
	c.log = logger.WithField("component", "dhan_connection").WithField("connection_id", c.id)
	c.state.Store(int32(StateInit))
	return c
}

// Start launches the connect/read/reconnect loop. The context bounds the
// connection's whole lifetime, including restarts.
func (c *Connection) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseCtx = ctx
	c.launchLocked()
}

func (c *Connection) launchLocked() {
	if c.running || c.baseCtx == nil {
		return
	}
	runCtx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.running = true
	go c.run(runCtx)
}

// Stop tears the connection down without reconnecting.
func (c *Connection) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// Restart drops the current transport and re-establishes it with a fresh
// attempt budget. The credential assignment is unchanged.
func (c *Connection) Restart() {
	c.mu.Lock()
	c.reconnectAttempts = 0
	c.backoff.Reset()
	conn := c.conn
	running := c.running
	c.mu.Unlock()

	if running && conn != nil {
		// Tripping the read loop sends the state machine through its
		// normal reconnect path.
		conn.Close()
		return
	}
	if !running {
		c.mu.Lock()
		c.launchLocked()
		c.mu.Unlock()
	}
}

// State reports the current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Load is the live subscription count, used by the pool's least-loaded
// selection.
func (c *Connection) Load() int64 {
	return c.subscriptions.Load()
}

// Info snapshots the connection for the management API.
func (c *Connection) Info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.State()
	return ConnectionInfo{
		ID:                c.id,
		State:             state.String(),
		Connected:         state == StateConnected,
		StartTime:         c.startTime,
		LastReceivedTime:  c.lastReceivedTime,
		LastPingSent:      c.lastPingSent,
		LastPongReceived:  c.lastPongReceived,
		SubscriptionCount: c.subscriptions.Load(),
		ReconnectAttempts: c.reconnectAttempts,
	}
}

// Subscribe sends a subscription frame for the given instruments. An empty
// list is a no-op. A closed channel nudges the reconnect path instead of
// failing the caller.
func (c *Connection) Subscribe(instruments []domain.InstrumentInfo) error {
	return c.sendSubscription(subscribeRequestCode, instruments)
}

// Unsubscribe sends an unsubscription frame for the given instruments.
func (c *Connection) Unsubscribe(instruments []domain.InstrumentInfo) error {
	return c.sendSubscription(unsubscribeRequestCode, instruments)
}

func (c *Connection) sendSubscription(requestCode int, instruments []domain.InstrumentInfo) error {
	if len(instruments) == 0 {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.State() != StateConnected {
		c.log.Warn("channel not open for subscription, triggering reconnect")
		c.nudgeReconnect()
		return nil
	}

	msg, err := json.Marshal(buildSubscriptionMessage(requestCode, instruments))
	if err != nil {
		return fmt.Errorf("marshal subscription message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		c.log.Errorf("subscription write failed: %v", err)
		c.nudgeReconnect()
		return fmt.Errorf("%w: write subscription: %v", domain.ErrTransport, err)
	}

	if requestCode == subscribeRequestCode {
		c.subscriptions.Add(int64(len(instruments)))
		c.log.Infof("subscribed to %d instruments", len(instruments))
	} else {
		if left := c.subscriptions.Add(-int64(len(instruments))); left < 0 {
			c.subscriptions.Store(0)
		}
		c.log.Infof("unsubscribed from %d instruments", len(instruments))
	}
	return nil
}

type subscriptionInstrument struct {
	ExchangeSegment string `json:"ExchangeSegment"`
	SecurityID      string `json:"SecurityId"`
}

type subscriptionMessage struct {
	RequestCode     int                      `json:"RequestCode"`
	InstrumentCount int                      `json:"InstrumentCount"`
	InstrumentList  []subscriptionInstrument `json:"InstrumentList"`
}

func buildSubscriptionMessage(requestCode int, instruments []domain.InstrumentInfo) subscriptionMessage {
	list := make([]subscriptionInstrument, 0, len(instruments))
	for _, inst := range instruments {
		list = append(list, subscriptionInstrument{
			ExchangeSegment: inst.ExchangeSegment,
			SecurityID:      fmt.Sprintf("%d", inst.Token),
		})
	}
	return subscriptionMessage{
		RequestCode:     requestCode,
		InstrumentCount: len(instruments),
		InstrumentList:  list,
	}
}

// nudgeReconnect forces the read loop to fail so the run loop re-dials.
func (c *Connection) nudgeReconnect() {
	c.mu.Lock()
	conn := c.conn
	running := c.running
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	} else if !running {
		c.Restart()
	}
}

func (c *Connection) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		conn, err := c.dial.Dial(ctx, c.url)
		if err != nil {
			c.log.Errorf("connect failed: %v", err)
			if !c.sleepBackoff(ctx) {
				return
			}
			continue
		}

		c.attach(conn)
		err = c.serve(ctx, conn)
		c.detach(conn)
		if ctx.Err() != nil {
			return
		}
		c.log.Warnf("connection lost: %v", err)
		if !c.sleepBackoff(ctx) {
			return
		}
	}
}

// sleepBackoff waits out the next reconnect delay. Returns false once the
// attempt cap is exhausted (terminal FAILED, reported, no further retries)
// or the context ends.
func (c *Connection) sleepBackoff(ctx context.Context) bool {
	c.mu.Lock()
	if c.reconnectAttempts >= c.opts.MaxReconnectAttempts {
		c.mu.Unlock()
		c.setState(StateFailed)
		c.log.Errorf("max reconnect attempts (%d) reached, giving up", c.opts.MaxReconnectAttempts)
		if c.opts.OnFailed != nil {
			c.opts.OnFailed(c)
		}
		return false
	}
	attempt := c.reconnectAttempts
	c.reconnectAttempts++
	delay := c.backoff.NextBackOff()
	c.mu.Unlock()

	c.setState(StateReconnecting)
	c.log.Infof("reconnect attempt %d in %s", attempt+1, delay)
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Connection) attach(conn wireConn) {
	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongReceived = time.Now()
		c.mu.Unlock()
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.startTime = time.Now()
	c.reconnectAttempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.setState(StateConnected)
	c.log.Info("connection established")
}

func (c *Connection) detach(conn wireConn) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// serve runs the heartbeat and the read loop until the transport fails.
func (c *Connection) serve(ctx context.Context, conn wireConn) error {
	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	if c.opts.HeartbeatInterval > 0 {
		go c.heartbeat(ctx, conn, stopHeartbeat)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: read: %v", domain.ErrTransport, err)
		}
		c.mu.Lock()
		c.lastReceivedTime = time.Now()
		c.mu.Unlock()
		c.handleFrame(data)
	}
}

// handleFrame decodes one inbound frame and fans quote events out to the
// registered consumers in arrival order. Zero-priced quotes are dropped
// before fan-out; protocol errors are logged and ignored.
func (c *Connection) handleFrame(data []byte) {
	event, err := DecodeFrame(data)
	if err != nil {
		c.log.Warnf("dropping frame: %v", err)
		return
	}
	switch event.Kind {
	case EventDisconnect:
		c.log.Infof("vendor disconnect notice, code %d", event.DisconnectCode)
	case EventQuote:
		if event.Quote.LatestTradedPrice == 0 {
			return
		}
		c.events.Notify(event)
	}
}

// heartbeat sends a small liveness probe on a fixed interval while the
// connection is up. A failed probe takes the same reconnect path as a
// transport error.
func (c *Connection) heartbeat(ctx context.Context, conn wireConn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.State() != StateConnected {
				continue
			}
			payload := c.pingPayload()
			if err := conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(writeTimeout)); err != nil {
				c.log.Warnf("heartbeat failed: %v", err)
				conn.Close()
				return
			}
			c.mu.Lock()
			c.lastPingSent = time.Now()
			c.mu.Unlock()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

type pingPayload struct {
	SessionID string `json:"sessionId"`
	PingedAt  string `json:"pingedAt"`
}

func (c *Connection) pingPayload() []byte {
	payload, _ := json.Marshal(pingPayload{
		SessionID: c.id,
		PingedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if len(payload) > maxPingPayload {
		payload = payload[:maxPingPayload]
	}
	return payload
}

func (c *Connection) setState(s ConnState) {
	c.state.Store(int32(s))
}
