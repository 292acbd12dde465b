package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaykit/relaysub/pkg/connection"
	"github.com/relaykit/relaysub/pkg/eventbus"
	"github.com/relaykit/relaysub/pkg/log"
	"github.com/relaykit/relaysub/pkg/wire"
)

// Client errors.
var (
	ErrNoURL          = errors.New("relay url not configured")
	ErrConnectionLost = errors.New("relay connection lost")
	ErrClosed         = errors.New("relay client closed")
)

// Message is a topic message delivered by the relay.
type Message struct {
	// SubscriptionID is the relay's id for the subscription that matched.
	SubscriptionID string
	// Method is the delivery method, e.g. relay_subscription.
	Method string
	Data   wire.SubscriptionData
}

// Client is a websocket JSON-RPC connection to one relay.
type Client struct {
	config Config
	logger *slog.Logger
	events log.Logger
	conns  *connection.Manager

	mu     sync.Mutex
	conn   *websocket.Conn
	connID string
	stop   chan struct{}

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan *wire.Response

	connects    *eventbus.Bus[struct{}]
	disconnects *eventbus.Bus[struct{}]
	messages    *eventbus.Bus[Message]
}

// NewClient creates a client for cfg.URL. It does not dial until TransportOpen.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("relay url scheme %q: want ws or wss", u.Scheme)
	}

	cfg = cfg.withDefaults()
	c := &Client{
		config:      cfg,
		logger:      cfg.Logger.With("component", "relay", "url", u.Host),
		events:      cfg.EventLogger,
		pending:     make(map[uint64]chan *wire.Response),
		connects:    eventbus.New[struct{}](),
		disconnects: eventbus.New[struct{}](),
		messages:    eventbus.New[Message](),
	}
	c.conns = connection.NewManagerWithConfig(c.dial, cfg.Connection)
	c.conns.OnStateChange(c.onStateChange)
	c.conns.StartReconnectLoop()
	return c, nil
}

// URL returns the configured relay URL.
func (c *Client) URL() string {
	return c.config.URL
}

// Connected reports whether the websocket is up.
func (c *Client) Connected() bool {
	return c.conns.IsConnected()
}

// Connecting reports whether a dial or reconnect is underway.
func (c *Client) Connecting() bool {
	return c.conns.IsConnecting()
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.conns.State()
}

// TransportOpen dials the relay, or waits for an attempt already underway.
func (c *Client) TransportOpen(ctx context.Context) error {
	return c.conns.Connect(ctx)
}

// Reconnect retries the relay in the background, for example after
// TransportOpen failed.
func (c *Client) Reconnect() {
	c.conns.Reconnect()
}

// OnConnect registers fn for every successful (re)connect.
func (c *Client) OnConnect(fn func()) func() {
	return c.connects.Subscribe(func(struct{}) { fn() })
}

// OnDisconnect registers fn for every loss or close of an established connection.
func (c *Client) OnDisconnect(fn func()) func() {
	return c.disconnects.Subscribe(func(struct{}) { fn() })
}

// OnMessage registers fn for inbound topic messages.
// fn runs on the read goroutine and must not block.
func (c *Client) OnMessage(fn func(Message)) func() {
	return c.messages.Subscribe(fn)
}

// Request sends req and waits for the matching response.
func (c *Client) Request(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	conn, connID := c.current()
	if conn == nil {
		return nil, connection.ErrNotConnected
	}

	ch := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()
	defer c.dropPending(req.ID)

	data, err := wire.Encode(req)
	if err != nil {
		return nil, err
	}
	sent := time.Now()
	if err := c.write(conn, data); err != nil {
		c.connLost(conn, err)
		return nil, fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	c.logMessage(connID, log.DirectionOut, data, &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		RequestID: req.ID,
		Method:    req.Method,
	})

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		rtt := time.Since(sent)
		me := &log.MessageEvent{Type: log.MessageTypeResponse, RequestID: resp.ID, Method: req.Method, RoundTrip: &rtt}
		if resp.Error != nil {
			code := resp.Error.Code
			me.ErrorCode = &code
		}
		c.logMessage(connID, log.DirectionIn, nil, me)
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect closes the websocket without reconnecting.
func (c *Client) Disconnect() {
	c.conns.Disconnect()
	c.closeConn()
}

// Close disconnects and releases the client. It cannot be reopened.
func (c *Client) Close() error {
	c.conns.Close()
	c.closeConn()
	c.connects.Close()
	c.disconnects.Close()
	c.messages.Close()
	return nil
}

func (c *Client) current() (*websocket.Conn, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.connID
}

// dial is the connection.ConnectFunc for this client.
func (c *Client) dial(ctx context.Context) error {
	target, err := c.dialURL(ctx)
	if err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()
	conn, resp, err := c.config.Dialer.DialContext(dctx, target, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	readTimeout := c.config.PingInterval + c.config.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	connID := uuid.NewString()
	conn.SetPongHandler(func(string) error {
		c.logControl(connID, log.DirectionIn, log.ControlMsgPong, nil)
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	stop := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connID = connID
	c.stop = stop
	c.mu.Unlock()

	c.logger.Debug("dialed relay", "conn_id", connID)
	go c.readLoop(conn, connID)
	go c.pingLoop(conn, connID, stop)
	return nil
}

func (c *Client) dialURL(ctx context.Context) (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", err
	}
	if c.config.Token == nil {
		return u.String(), nil
	}

	aud := (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
	token, err := c.config.Token.SignAuthToken(ctx, aud, c.config.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("sign relay auth token: %w", err)
	}
	q := u.Query()
	q.Set(AuthQueryParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) readLoop(conn *websocket.Conn, connID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code := ce.Code
				c.logControl(connID, log.DirectionIn, log.ControlMsgClose, &code)
			}
			c.connLost(conn, err)
			return
		}
		c.handleFrame(conn, connID, data)
	}
}

func (c *Client) handleFrame(conn *websocket.Conn, connID string, data []byte) {
	req, resp, err := wire.Decode(data)
	if err != nil {
		c.logger.Warn("dropping malformed frame", "conn_id", connID, "error", err)
		c.logError(connID, log.LayerRPC, err, "decode frame")
		return
	}
	if resp != nil {
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Debug("response for unknown request", "id", resp.ID)
			return
		}
		ch <- resp
		return
	}
	c.handleRequest(conn, connID, req, data)
}

func (c *Client) handleRequest(conn *websocket.Conn, connID string, req *wire.Request, data []byte) {
	if !wire.IsSubscription(req.Method) {
		c.reply(conn, wire.NewErrorResponse(req.ID, wire.CodeMethodNotFound, "method not found: "+req.Method))
		return
	}

	var params wire.SubscriptionParams
	if err := req.DecodeParams(&params); err != nil {
		c.reply(conn, wire.NewErrorResponse(req.ID, wire.CodeInvalidParams, err.Error()))
		return
	}
	c.logMessage(connID, log.DirectionIn, data, &log.MessageEvent{
		Type:           log.MessageTypeNotification,
		RequestID:      req.ID,
		Method:         req.Method,
		Topic:          params.Data.Topic,
		SubscriptionID: params.ID,
	})

	c.messages.Publish(Message{SubscriptionID: params.ID, Method: req.Method, Data: params.Data})

	ack, err := wire.NewResult(req.ID, true)
	if err != nil {
		return
	}
	c.reply(conn, ack)
}

func (c *Client) reply(conn *websocket.Conn, resp *wire.Response) {
	data, err := wire.Encode(resp)
	if err != nil {
		c.logger.Warn("encode response", "id", resp.ID, "error", err)
		return
	}
	if err := c.write(conn, data); err != nil {
		c.connLost(conn, err)
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) pingLoop(conn *websocket.Conn, connID string, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.connLost(conn, err)
				return
			}
			c.logControl(connID, log.DirectionOut, log.ControlMsgPing, nil)
		}
	}
}

// connLost tears down conn if it is still current and reports the loss.
func (c *Client) connLost(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.stop)
	c.stop = nil
	c.mu.Unlock()

	_ = conn.Close()
	c.conns.NotifyConnectionLost(cause)
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}

func (c *Client) onStateChange(tr connection.Transition) {
	_, connID := c.current()
	reason := ""
	if tr.Err != nil {
		reason = tr.Err.Error()
	}
	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionLocal,
		Layer:        log.LayerLink,
		Category:     log.CategoryState,
		RelayURL:     c.config.URL,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityLink,
			OldState: tr.Old.String(),
			NewState: tr.New.String(),
			Reason:   reason,
		},
	})

	switch {
	case tr.New == connection.StateConnected:
		c.logger.Info("relay connected")
		c.connects.Publish(struct{}{})
	case tr.Old == connection.StateConnected:
		c.logger.Info("relay disconnected", "state", tr.New, "error", tr.Err)
		if tr.New != connection.StateReconnecting {
			c.closeConn()
		}
		c.failPending()
		c.disconnects.Publish(struct{}{})
	}
}

// failPending releases every waiting Request with ErrConnectionLost.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan *wire.Response)
	c.pendingMu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

func (c *Client) dropPending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) logMessage(connID string, dir log.Direction, data []byte, msg *log.MessageEvent) {
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerRPC,
		Category:     log.CategoryMessage,
		RelayURL:     c.config.URL,
		Message:      msg,
	}
	if data != nil {
		ev.Frame = log.NewFrameEvent(data)
	}
	c.events.Log(ev)
}

func (c *Client) logControl(connID string, dir log.Direction, typ log.ControlMsgType, code *int) {
	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerLink,
		Category:     log.CategoryControl,
		RelayURL:     c.config.URL,
		ControlMsg:   &log.ControlMsgEvent{Type: typ, CloseCode: code},
	})
}

func (c *Client) logError(connID string, layer log.Layer, err error, op string) {
	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        layer,
		Category:     log.CategoryError,
		RelayURL:     c.config.URL,
		Error:        &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op},
	})
}
