package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat/internal/auth"
)

// rejectReason is sent with every policy violation close so that no
// rejection category can be told apart from another on the wire.
const rejectReason = "unauthorized"

// State is a connection's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Client is one WebSocket connection and the session it may establish. It
// implements Conn so the registry and broadcaster can queue frames to it.
type Client struct {
	conn           *websocket.Conn
	hub            *Hub
	addr           string
	name           string
	maxMessageSize int64
	writeTimeout   time.Duration
	keepalive      time.Duration
	logger         *slog.Logger

	send   chan []byte
	mu     sync.Mutex
	closed bool

	state      atomic.Int32
	credential string
	session    *Session
	writerDone chan struct{}
	teardown   sync.Once
	done       chan struct{}
}

// NewClient creates a Client for conn claiming the display name from the
// connection path. The outbound queue is bounded by cfg.SendBufferSize.
func NewClient(conn *websocket.Conn, hub *Hub, addr, name string, cfg *Config) *Client {
	if cfg == nil {
		cfg = NewConfig()
	}
	logger := hub.logger
	return &Client{
		conn:           conn,
		hub:            hub,
		addr:           addr,
		name:           name,
		maxMessageSize: cfg.MaxMessageSize,
		writeTimeout:   cfg.WriteTimeout,
		keepalive:      cfg.KeepaliveInterval,
		logger:         logger.With("remote_addr", addr, "name", name),
		send:           make(chan []byte, cfg.SendBufferSize),
		done:           make(chan struct{}),
	}
}

// Name returns the display name claimed by the connection.
func (c *Client) Name() string { return c.name }

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() string { return c.addr }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Done is closed once the client reaches Closed or Rejected.
func (c *Client) Done() <-chan struct{} { return c.done }

// Enqueue queues payload for the write pump without blocking.
func (c *Client) Enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a going-away close frame and shuts the socket. The read pump
// then fails and the usual teardown runs.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeControlClose(websocket.CloseGoingAway, "server shutting down")
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		return err
	}
	return nil
}

// run drives the lifecycle. It returns once the connection is Closed or
// Rejected; cleanup runs exactly once on every path.
func (c *Client) run(authorization string) {
	defer c.finish()

	if err := c.authenticate(authorization); err != nil {
		c.reject(err)
		return
	}

	c.activate()
	c.readPump()
}

// authenticate moves the client from Connecting to Active or returns the
// tagged reason it must be rejected.
func (c *Client) authenticate(authorization string) error {
	credential, err := auth.ParseBearer(authorization)
	if err != nil {
		return newError(KindAuthMissing, c.name, err)
	}

	c.setState(StateAuthenticating)

	claims, err := c.hub.verifier.Verify(credential)
	if err != nil {
		return newError(authErrorKind(err), c.name, err)
	}

	if claims.DisplayName != c.name {
		return newError(KindAuthMismatch, c.name,
			fmt.Errorf("credential issued to %q", claims.DisplayName))
	}

	session, err := c.hub.registry.Register(credential, c.name, c)
	if err != nil {
		return newError(KindCredentialReplay, c.name, err)
	}

	c.credential = credential
	c.session = session
	c.setState(StateActive)
	return nil
}

// reject is the single close-and-log site for every authentication failure.
func (c *Client) reject(err error) {
	c.setState(StateRejected)
	c.logger.Warn("Rejected connection", "kind", KindOf(err).String(), "error", err)
	c.writeControlClose(websocket.ClosePolicyViolation, rejectReason)
}

func (c *Client) activate() {
	if c.conn != nil {
		c.conn.SetReadLimit(c.maxMessageSize)
	}

	c.writerDone = make(chan struct{})
	c.hub.wg.Add(1)
	go func() {
		defer c.hub.wg.Done()
		defer close(c.writerDone)
		c.writePump()
	}()

	c.logger.Info("Client connected",
		"session_id", c.session.ID.String(), "clients", c.hub.registry.Len())
	c.hub.broadcaster.Broadcast(JoinNotice(c.name, c.hub.now()), c)

	// Shutdown may have taken its snapshot before this session registered.
	if c.hub.isClosed() {
		_ = c.Close()
	}
}

func (c *Client) finish() {
	c.teardown.Do(func() {
		defer close(c.done)

		if c.State() == StateRejected {
			c.closeConnection()
			return
		}

		c.setState(StateClosing)

		if c.session != nil {
			if name, ok := c.hub.registry.Unregister(c.credential); ok {
				c.logger.Info("Client disconnected",
					"session_id", c.session.ID.String(), "clients", c.hub.registry.Len())
				c.hub.broadcaster.Broadcast(LeaveNotice(name, c.hub.now()), nil)
			}
		}

		c.closeSend()
		if c.writerDone != nil {
			<-c.writerDone
		} else {
			c.closeConnection()
		}

		c.setState(StateClosed)
	})
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Closing connection on non-text frame",
				"kind", KindProtocolViolation.String(), "message_type", messageType)
			c.writeControlClose(websocket.CloseUnsupportedData, "text frames only")
			return
		}

		c.hub.broadcaster.Broadcast(ChatMessage(c.name, string(payload), c.hub.now()), c)
	}
}

// handleReadError logs why the read loop ended.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("Message exceeded maximum size",
			"kind", KindProtocolViolation.String(), "limit", c.maxMessageSize)
		return
	}

	disconnect := newError(KindTransportDisconnect, c.name, err)

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		c.logger.Info("Client closed connection", "kind", disconnect.Kind.String(), "error", err)
		return
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) ||
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure) {
		c.logger.Info("Client connection dropped", "kind", disconnect.Kind.String(), "error", err)
		return
	}

	c.logger.Warn("WebSocket read error", "kind", disconnect.Kind.String(), "error", err)
}

func (c *Client) writePump() {
	var tick <-chan time.Time
	if c.keepalive > 0 {
		ticker := time.NewTicker(c.keepalive)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.closeConnection()

	for c.processWriteEvent(tick) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(tick <-chan time.Time) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-tick:
		return c.handlePing()
	}
}

// handleMessage writes one envelope per frame, or the close frame once the
// send channel has been closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.logger.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		c.writeCloseMessage()
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("Error writing close message", "error", err)
		}
	}
}

// handlePing sends a keepalive ping; a failed ping ends the write pump.
func (c *Client) handlePing() bool {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
		c.logger.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}

func (c *Client) writeControlClose(code int, reason string) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout)); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("Error writing close frame", "code", code, "error", err)
		}
	}
}

// closeConnection closes the socket, ignoring errors expected after a close.
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("Error closing connection", "error", err)
	}
}
