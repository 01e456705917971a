// Package wsclient is a driver and parent client for the tracking WebSocket.
// It owns one connection at a time, matches acks to requests by request id,
// and reconnects with capped exponential backoff, re-subscribing every route
// it was subscribed to.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/pkg/retry"
)

// KindReconnected is delivered on the event stream after a reconnect, once
// re-subscription has been requested. A fresh location:current follows for
// every route; nothing missed while disconnected is replayed.
const KindReconnected = "client:reconnected"

var (
	// ErrClosed is returned by calls made after Close
	ErrClosed = errors.New("wsclient: client closed")
	// ErrTimeout is returned when no ack arrived within the request timeout on any attempt
	ErrTimeout = errors.New("wsclient: request timed out")
	// ErrNotConnected is returned when the connection stayed down for every attempt
	ErrNotConnected = errors.New("wsclient: not connected")
)

// AckError is a request the server refused
type AckError struct {
	Code      string
	Message   string
	SessionID string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Event is one server-pushed envelope
type Event struct {
	Kind string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Config holds client settings
type Config struct {
	URL   string
	Token string

	RequestTimeout time.Duration
	RequestRetries int
	ReadTimeout    time.Duration // 0 disables; should exceed the server ping interval
	EventBuffer    int

	// Reconnect bounds reconnection. MaxRetries is the hard cap after which
	// the client gives up and surfaces the failure through Err.
	Reconnect retry.Config

	Dialer *websocket.Dialer
}

// DefaultConfig returns client defaults for url and token
func DefaultConfig(url, token string) Config {
	return Config{
		URL:            url,
		Token:          token,
		RequestTimeout: 5 * time.Second,
		RequestRetries: 2,
		EventBuffer:    64,
		Reconnect: retry.Config{
			MaxRetries: 8,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   30 * time.Second,
			Multiplier: 2,
			Jitter:     true,
		},
	}
}

// Client is a tracking WebSocket connection manager
type Client struct {
	cfg       Config
	reconnect *retry.Retrier
	requests  *retry.Retrier
	once      *retry.Retrier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan models.WSAck
	routes  map[string]struct{}
	err     error

	writeMu sync.Mutex

	eventsMu sync.Mutex
	events   chan Event
	closed   bool
}

// Open dials the server and starts the read loop. The initial dial uses the
// same backoff as reconnection.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	reconnectCfg := cfg.Reconnect
	reconnectCfg.RetryableFunc = isTransientDial
	requestCfg := retry.Config{
		MaxRetries:    cfg.RequestRetries,
		BaseDelay:     cfg.RequestTimeout / 10,
		MaxDelay:      cfg.RequestTimeout,
		Multiplier:    2,
		Jitter:        true,
		RetryableFunc: isTransientRequest,
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:       cfg,
		reconnect: retry.New(reconnectCfg, nil),
		requests:  retry.New(requestCfg, nil),
		once:      retry.New(retry.Config{MaxRetries: 0}, nil),
		ctx:       cctx,
		cancel:    cancel,
		pending:   make(map[string]chan models.WSAck),
		routes:    make(map[string]struct{}),
		events:    make(chan Event, cfg.EventBuffer),
	}

	conn, err := c.dialWithBackoff(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	if !c.setConn(conn) {
		return nil, ErrClosed
	}
	return c, nil
}

// Events is the stream of server-pushed events. It is closed when the
// client is closed or gives up reconnecting; Err tells which.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Err returns the terminal failure once the event stream is closed, or nil
// after a plain Close
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection and the event stream
func (c *Client) Close() error {
	c.shutdown(nil)
	c.wg.Wait()
	return nil
}

func (c *Client) shutdown(cause error) {
	c.cancel()

	c.mu.Lock()
	if cause != nil && c.err == nil {
		c.err = cause
	}
	conn := c.conn
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}

	c.eventsMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.eventsMu.Unlock()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, retry.Permanent(fmt.Errorf("wsclient: handshake rejected with status %d", resp.StatusCode))
		}
		return nil, err
	}
	return conn, nil
}

func (c *Client) dialWithBackoff(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := c.reconnect.Execute(ctx, func(ctx context.Context) error {
		var err error
		conn, err = c.dial(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("wsclient: connect %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func isTransientDial(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func isTransientRequest(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotConnected)
}

// setConn installs conn and starts its read loop. It reports false, closing
// conn, when the client was closed meanwhile.
func (c *Client) setConn(conn *websocket.Conn) bool {
	if c.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn)
	return true
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				logger.Warn("Ignoring malformed frame from server", logger.ErrorField(err))
				continue
			}
			logger.Warn("Tracking connection lost, reconnecting", logger.ErrorField(err))
			c.handleDisconnect(conn)
			return
		}
		if c.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}

		if msg.Event == constants.EventAck || msg.Event == constants.EventPong {
			c.deliverAck(msg)
			continue
		}
		if msg.Event == constants.EventError && msg.RequestID != "" {
			var wsErr models.WSErrorMessage
			_ = json.Unmarshal(msg.Data, &wsErr)
			c.deliver(msg.RequestID, models.WSAck{Code: wsErr.Code, Message: wsErr.Message})
			continue
		}
		c.push(Event{Kind: msg.Event, Data: msg.Data})
	}
}

func (c *Client) deliverAck(msg models.WSMessage) {
	var ack models.WSAck
	if msg.Event == constants.EventPong {
		ack.OK = true
	} else if err := json.Unmarshal(msg.Data, &ack); err != nil {
		logger.Warn("Ignoring undecodable ack", logger.String("request_id", msg.RequestID))
		return
	}
	c.deliver(msg.RequestID, ack)
}

func (c *Client) deliver(requestID string, ack models.WSAck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[requestID]
	if !ok {
		return
	}
	select {
	case ch <- ack:
	default:
	}
}

// push hands an event to the consumer, dropping the oldest buffered event when the consumer lags
func (c *Client) push(ev Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		select {
		case <-c.events:
		default:
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	next, err := c.dialWithBackoff(c.ctx)
	if err != nil {
		if c.ctx.Err() == nil {
			logger.Error("Giving up reconnecting to tracking service", logger.ErrorField(err))
			c.shutdown(err)
		}
		return
	}
	if !c.setConn(next) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.resubscribe()
	}()
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	routes := make([]string, 0, len(c.routes))
	for routeID := range c.routes {
		routes = append(routes, routeID)
	}
	c.mu.Unlock()

	for _, routeID := range routes {
		if _, err := c.Request(c.ctx, constants.EventSubscribe, models.SubscribePayload{RouteID: routeID}); err != nil {
			logger.Warn("Failed to re-subscribe after reconnect",
				logger.RouteID(routeID),
				logger.ErrorField(err))
		}
	}
	c.push(Event{Kind: KindReconnected})
}

func (c *Client) send(msg models.WSMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Request sends event and waits for its ack. Every attempt carries the same
// request id, so the server applies a retried lifecycle request at most once.
func (c *Client) Request(ctx context.Context, event string, data interface{}) (models.WSAck, error) {
	return c.request(ctx, c.requests, event, data)
}

func (c *Client) request(ctx context.Context, retrier *retry.Retrier, event string, data interface{}) (models.WSAck, error) {
	if c.ctx.Err() != nil {
		return models.WSAck{}, ErrClosed
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return models.WSAck{}, fmt.Errorf("wsclient: marshal %s: %w", event, err)
	}

	requestID := uuid.NewString()
	ch := make(chan models.WSAck, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	var ack models.WSAck
	var lastErr error
	err = retrier.Execute(ctx, func(ctx context.Context) error {
		if err := c.send(models.WSMessage{Event: event, RequestID: requestID, Data: raw}); err != nil {
			lastErr = err
			return err
		}

		timer := time.NewTimer(c.cfg.RequestTimeout)
		defer timer.Stop()
		select {
		case got, ok := <-ch:
			if !ok {
				return retry.Permanent(ErrClosed)
			}
			ack = got
			return nil
		case <-timer.C:
			lastErr = ErrTimeout
			return ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) && lastErr != nil {
			return models.WSAck{}, fmt.Errorf("wsclient: %s: %w", event, lastErr)
		}
		return models.WSAck{}, err
	}
	if !ack.OK {
		return ack, &AckError{Code: ack.Code, Message: ack.Message, SessionID: ack.SessionID}
	}
	return ack, nil
}
