package kraken

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/domain"
	"cryptodesk/internal/domain/model"
)

var _ port.Feed = (*Client)(nil)

// ErrNotConnected is returned by Subscribe while the transport is down.
// The caller decides whether to retry; the client never does.
var ErrNotConnected = errors.New("websocket is not connected")

// ConnState is the transport lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Conn is the slice of *websocket.Conn the client needs. Tests swap in
// an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens one streaming connection to the venue.
type Dialer func(ctx context.Context, url string) (Conn, error)

func gorillaDialer(ctx context.Context, url string) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type subscribeRequest struct {
	Event        string           `json:"event"`
	Pair         []string         `json:"pair"`
	Subscription subscriptionSpec `json:"subscription"`
}

type subscriptionSpec struct {
	Name string `json:"name"`
}

// Config for the feed client.
type Config struct {
	URL           string
	DefaultPairs  []string
	RetryInterval time.Duration
	Dial          Dialer // nil means gorilla/websocket
}

// Client maintains the single streaming connection to Kraken, owns the
// subscription registry and turns raw venue messages into TickerEvents.
// All transport callbacks run on the client's own goroutines; consumers
// only see the Events channel.
type Client struct {
	url           string
	defaultPairs  []string
	retryInterval time.Duration
	dial          Dialer

	mu         sync.Mutex
	state      ConnState
	connecting bool   // latch: one connect attempt at a time
	gen        uint64 // bumped on teardown; a dial started before the bump is stale
	conn       Conn

	registry *Registry
	book     *domain.PriceBook
	events   chan model.TickerEvent
	readers  sync.WaitGroup
}

func NewClient(cfg Config, book *domain.PriceBook) *Client {
	dial := cfg.Dial
	if dial == nil {
		dial = gorillaDialer
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Client{
		url:           cfg.URL,
		defaultPairs:  cfg.DefaultPairs,
		retryInterval: retry,
		dial:          dial,
		registry:      NewRegistry(),
		book:          book,
		events:        make(chan model.TickerEvent, 1024),
	}
}

// Events is the decoded ticker stream. Closed when Run returns.
func (c *Client) Events() <-chan model.TickerEvent { return c.events }

// Registry exposes the subscription set for read-side callers.
func (c *Client) Registry() *Registry { return c.registry }

// Connected reports whether the transport is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the transport lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribed reports whether a pair is tracked (Pending or Active).
func (c *Client) Subscribed(pair string) bool {
	return c.registry.Contains(pair)
}

// Run connects and keeps the connection alive until ctx is done,
// retrying on a fixed interval while disconnected. It closes the event
// channel on exit.
func (c *Client) Run(ctx context.Context) {
	c.Connect(ctx)

	ticker := time.NewTicker(c.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeConn()
			c.readers.Wait()
			close(c.events)
			return
		case <-ticker.C:
			if !c.Connected() {
				c.Connect(ctx)
			}
		}
	}
}

// Connect opens the transport. A call while another connect is in
// flight is a no-op; so is a call while already connected.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.connecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	gen := c.gen
	if c.state == StateDisconnected {
		c.state = StateConnecting
	} else {
		c.state = StateReconnecting
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if c.gen != gen {
		// A Reconnect or shutdown superseded this attempt while the
		// dial was in flight. Its result must not replace the newer
		// connection.
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.connecting = false
		c.state = StateDisconnected
		c.mu.Unlock()
		log.Error().Err(err).Str("url", c.url).Msg("kraken dial failed")
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.connecting = false
	c.mu.Unlock()

	log.Info().Str("url", c.url).Msg("connected to kraken websocket")

	// Previously tracked pairs are resubscribed on the fresh
	// connection together with the defaults.
	pairs := append([]string(nil), c.defaultPairs...)
	pairs = append(pairs, c.registry.Pairs()...)
	c.registry.Clear()

	c.readers.Add(1)
	go c.readLoop(conn)

	if err := c.Subscribe(pairs...); err != nil {
		log.Error().Err(err).Msg("subscribe on open failed")
	}
}

// Reconnect forcibly drops any live connection and dials again. The
// connecting latch is cleared first so a stuck connect cannot block it.
func (c *Client) Reconnect(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connecting = false
	c.state = StateDisconnected
	c.gen++
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.Connect(ctx)
}

// Subscribe sends a ticker subscribe request for each pair not already
// tracked. Pairs are marked Pending before the venue acknowledges;
// acknowledgment failure removes them again (see handleStatus).
func (c *Client) Subscribe(pairs ...string) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	for _, pair := range pairs {
		if !c.registry.Add(pair) {
			log.Debug().Str("pair", pair).Msg("pair already subscribed")
			continue
		}
		req := subscribeRequest{
			Event:        "subscribe",
			Pair:         []string{pair},
			Subscription: subscriptionSpec{Name: "ticker"},
		}
		if err := conn.WriteJSON(req); err != nil {
			c.registry.Remove(pair)
			return fmt.Errorf("subscribe %s: %w", pair, err)
		}
		log.Info().Str("pair", pair).Msg("subscription request sent")
	}
	return nil
}

func (c *Client) readLoop(conn Conn) {
	defer c.readers.Done()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleMessage(raw)
	}
}

// handleClose marks the transport down so the Run loop's retry ticker
// picks it up. Only the connection that failed may tear down state; a
// stale reader from a previous connection must not.
func (c *Client) handleClose(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connecting = false
	c.state = StateDisconnected
	c.mu.Unlock()

	_ = conn.Close()
	log.Warn().Err(err).Msg("kraken websocket closed, will reconnect")
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.gen++
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// handleMessage classifies one raw venue message. Malformed payloads
// are dropped without affecting the connection or other pairs.
func (c *Client) handleMessage(raw []byte) {
	if isObject(raw) {
		// Event objects: subscriptionStatus drives the registry,
		// everything else (heartbeat, systemStatus) is noise.
		if status, ok := parseStatus(raw); ok {
			c.handleStatus(status)
		}
		return
	}

	upd, err := parseTicker(raw)
	if err != nil {
		if !errors.Is(err, errNotTicker) {
			log.Error().Err(err).Str("raw", string(raw)).Msg("dropping undecodable message")
		}
		return
	}

	reference := upd.Price
	if upd.HasOpen {
		reference = upd.Open
	} else if ref, ok := c.book.Reference(upd.Pair); ok {
		reference = ref
	}
	change := change24h(upd.Price, reference)

	c.book.Set(upd.Pair, domain.Quote{
		Price:     upd.Price,
		Reference: reference,
		Change24h: change,
	})
	c.registry.Activate(upd.Pair)

	c.emit(model.TickerEvent{Pair: upd.Pair, Price: upd.Price, Change24h: change})
}

// handleStatus applies a subscriptionStatus event to the registry. An
// error status revokes the pair: it leaves the registry and a
// zero-valued event tells subscribers the pair is gone.
func (c *Client) handleStatus(status statusMessage) {
	switch status.Status {
	case "error":
		log.Error().
			Str("pair", status.Pair).
			Str("reason", status.ErrorMessage).
			Msg("subscription rejected")
		c.registry.Remove(status.Pair)
		c.emit(model.TickerEvent{Pair: status.Pair})
	case "subscribed":
		log.Info().Str("pair", status.Pair).Msg("subscription confirmed")
		c.registry.Activate(status.Pair)
	default:
		log.Info().Str("pair", status.Pair).Str("status", status.Status).Msg("subscription status")
	}
}

// emit never blocks: if the consumer has fallen behind the buffered
// channel, the event is dropped.
func (c *Client) emit(e model.TickerEvent) {
	select {
	case c.events <- e:
	default:
		log.Warn().Str("pair", e.Pair).Msg("event buffer full, dropping update")
	}
}
