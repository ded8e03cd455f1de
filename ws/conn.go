package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/chathaven/haven-client/auth"
	"github.com/chathaven/haven-client/globals"
	"github.com/chathaven/haven-client/types"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize   = 4096
	pongWait         = 2 * time.Minute
	pingPeriod       = time.Minute
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	sendChannelSize  = 256
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
)

// ErrNotConnected is returned by Emit while the connection is not in the
// Connected state. No outbound operation ever goes on the wire while
// disconnected or reconnecting.
var ErrNotConnected = fmt.Errorf("not connected")

// ConnState is the connection state the orchestration layer observes.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateAuthenticating
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "disconnected"
}

// Handler consumes the data part of one inbound wire event. Handlers are
// called on the single reader goroutine, in arrival order.
type Handler func(data json.RawMessage)

// Conn owns the one persistent websocket channel of a session. It dials with
// a fresh credential from the token source on every attempt, keeps a single
// reader and a single writer goroutine per physical connection, and redials
// with capped backoff when the transport drops. Handler registrations live
// for the lifetime of the logical connection (across transport redials) and
// are released by Disconnect.
type Conn struct {
	url    string
	origin string
	tokens auth.TokenSource

	mu      sync.Mutex
	state   ConnState
	running bool
	conn    *websocket.Conn
	send    chan []byte
	stop    chan struct{}
	stateCb func(ConnState)
	fatalCb func(error)

	handlersLock sync.RWMutex
	handlers     map[string][]Handler
}

func NewConn(serverUrl, origin string, tokens auth.TokenSource) *Conn {
	return &Conn{
		url:      serverUrl,
		origin:   origin,
		tokens:   tokens,
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for an inbound event.
func (c *Conn) On(event string, h Handler) {
	c.handlersLock.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.handlersLock.Unlock()
}

// OnStateChange sets the state observer. Must be set before Connect.
func (c *Conn) OnStateChange(cb func(ConnState)) {
	c.mu.Lock()
	c.stateCb = cb
	c.mu.Unlock()
}

// OnFatal sets the observer for fatal conditions (credential unavailable on a
// reconnect attempt). Must be set before Connect.
func (c *Conn) OnFatal(cb func(error)) {
	c.mu.Lock()
	c.fatalCb = cb
	c.mu.Unlock()
}

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect obtains a credential, dials and starts the pump goroutines. It is
// idempotent: calling it while already running is a no-op. The first
// credential fetch and dial happen synchronously so the caller sees the
// "authentication unavailable" condition as a plain error return.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.send = make(chan []byte, sendChannelSize)
	c.stop = make(chan struct{})
	c.mu.Unlock()

	c.setState(StateAuthenticating)
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.abort()
		return fmt.Errorf("authentication unavailable: %w", err)
	}
	conn, err := c.dial(ctx, token)
	if err != nil {
		c.abort()
		return fmt.Errorf("could not dial %s: %w", c.url, err)
	}
	c.attach(ctx, conn)
	return nil
}

// Disconnect tears the channel down synchronously: the caller observes the
// Disconnected state on return and every handler registration is released, so
// no late event from the old connection can fire into a new session.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.handlersLock.Lock()
	c.handlers = make(map[string][]Handler)
	c.handlersLock.Unlock()
	c.setState(StateDisconnected)
}

// Emit sends one event to the server. It refuses with ErrNotConnected unless
// the connection is currently established.
func (c *Conn) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	if c.state != StateConnected || !c.running {
		c.mu.Unlock()
		return ErrNotConnected
	}
	send := c.send
	c.mu.Unlock()
	raw, err := types.NewWireMessage(event, payload)
	if err != nil {
		return err
	}
	select {
	case send <- raw:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (c *Conn) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	hdr := http.Header{}
	if c.origin != "" {
		hdr.Set("Origin", c.origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), hdr)
	return conn, err
}

// attach installs a freshly dialed physical connection and starts its pumps.
func (c *Conn) attach(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if !c.running {
		// Disconnect won the race against a reconnect attempt
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	send := c.send
	stop := c.stop
	c.mu.Unlock()
	done := make(chan struct{})
	go c.writeLoop(conn, send, stop, done)
	go c.readLoop(ctx, conn, done)
	c.setState(StateConnected)
}

// readLoop pumps inbound frames into the handler table. There is at most one
// reader per physical connection; handler dispatch happens here, which
// serializes all inbound events in arrival order.
func (c *Conn) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.stopped() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Warn("websocket closed unexpectedly", "error", err)
			}
			go c.reconnect(ctx)
			return
		}
		c.dispatch(raw)
	}
}

// writeLoop pumps outbound frames and keepalive pings. There is at most one
// writer per physical connection.
func (c *Conn) writeLoop(conn *websocket.Conn, send chan []byte, stop, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case message := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				globals.AppLogger.Debug("could not write to websocket, exiting write loop", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				globals.AppLogger.Debug("could not send ping, exiting write loop")
				return
			}
		case <-done:
			return
		case <-stop:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// reconnect redials with capped backoff, fetching a fresh credential per
// attempt. A credential failure here is fatal for the session attempt and is
// reported through the fatal observer instead of being retried.
func (c *Conn) reconnect(ctx context.Context) {
	c.setState(StateReconnecting)
	backoff := initialBackoff
	for {
		if c.stopped() {
			return
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.fatal(fmt.Errorf("authentication unavailable: %w", err))
			return
		}
		conn, err := c.dial(ctx, token)
		if err == nil {
			c.attach(ctx, conn)
			return
		}
		globals.AppLogger.Warn("reconnect attempt failed", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-c.stopChan():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Conn) dispatch(raw []byte) {
	msg := types.WebsocketMessage{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		globals.AppLogger.Error("could not unmarshal ws message", "error", err)
		return
	}
	c.handlersLock.RLock()
	hs := append([]Handler(nil), c.handlers[msg.Event]...)
	c.handlersLock.RUnlock()
	for _, h := range hs {
		h(msg.Data)
	}
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.stateCb
	c.mu.Unlock()
	globals.AppLogger.Debug("connection state", "state", s)
	if cb != nil {
		cb(s)
	}
}

func (c *Conn) fatal(err error) {
	globals.AppLogger.Error("connection failed", "error", err)
	c.mu.Lock()
	cb := c.fatalCb
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
	c.Disconnect()
}

// abort rolls back a Connect attempt that never established a channel.
func (c *Conn) abort() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

func (c *Conn) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.running
}

func (c *Conn) stopChan() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop
}
