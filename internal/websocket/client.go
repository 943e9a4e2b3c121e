package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/kinfolk/backend/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	// Send buffer size
	sendBufferSize = 256

	// Bound on the goodbye write during hub shutdown
	shutdownGrace = 2 * time.Second
)

var (
	ErrClientClosed      = errors.New("client connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")
	ErrNotOpen           = errors.New("connection not open")
	ErrInvalidTransition = errors.New("invalid connection state transition")
	ErrHubClosed         = errors.New("hub is shutting down")
)

// Transport is the bidirectional channel under a Client. *websocket.Conn
// satisfies it; tests may leave it nil.
type Transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// ConnState is the lifecycle of a connection: connecting, open, closed.
// Open and Close are the only transitions; closed is terminal.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Client represents a single WebSocket connection. UserID is fixed at
// construction from the verified token and never changes.
type Client struct {
	ID     string
	UserID string

	conn Transport
	hub  *Hub

	// Buffered channel of outbound messages. Never closed; WritePump exits
	// on ctx instead so late publishers cannot panic.
	send chan []byte

	// Connection metadata
	ConnectedAt time.Time
	RemoteAddr  string
	UserAgent   string
	lastPingAt  time.Time

	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards state and lastPingAt
	mu    sync.RWMutex
	state ConnState

	// lifecycle serializes Open against Close
	lifecycle sync.Mutex
	closeOnce sync.Once
}

// NewClient creates a Client in the connecting state
func NewClient(hub *Hub, conn Transport, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		ID:          uuid.New().String(),
		UserID:      userID,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now().UTC(),
		limiter:     rate.NewLimiter(rate.Limit(config.MaxMessagesPerSecond), config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateConnecting,
	}
}

// Open moves the client from connecting to open: it joins its user's channel
// and presence is announced if this is the user's first connection.
func (c *Client) Open(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if st := c.State(); st != StateConnecting {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, st)
	}
	if err := c.hub.attach(ctx, c); err != nil {
		return err
	}
	c.setState(StateOpen)
	return nil
}

// Receive handles one inbound frame. It is only valid while open.
func (c *Client) Receive(data []byte) error {
	if st := c.State(); st != StateOpen {
		return fmt.Errorf("%w: receive while %s", ErrNotOpen, st)
	}

	if !c.limiter.Allow() {
		c.hub.metrics.Errors.Add(1)
		c.SendError(ErrCodeRateLimited, "Too many messages, please slow down")
		return nil
	}

	c.hub.metrics.MessagesReceived.Add(1)

	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		logger.Log.Warn("WebSocket JSON parse error",
			logger.WithUserID(c.UserID),
			zap.Error(err))
		c.SendError(ErrCodeInvalidJSON, "Failed to parse message")
		return nil
	}

	c.handleMessage(&message)
	return nil
}

// Close closes the connection normally
func (c *Client) Close() {
	c.CloseWithStatus(websocket.StatusNormalClosure, "closing")
}

// CloseWithStatus moves the client to closed. If it was open it leaves its
// channel, which may announce the user offline. Safe to call repeatedly and
// from any goroutine.
func (c *Client) CloseWithStatus(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.lifecycle.Lock()
		defer c.lifecycle.Unlock()

		prev := c.setState(StateClosed)
		if prev == StateOpen {
			c.hub.detach(c)
		}

		// The close handshake needs the read loop, which stops on cancel
		if c.conn != nil {
			_ = c.conn.Close(code, reason)
		}
		c.cancel()
	})
}

// ReadPump reads frames until the connection fails or is closed. It blocks
// and closes the client on return.
func (c *Client) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				logger.Log.Debug("Client closed connection", logger.WithUserID(c.UserID), logger.WithConnID(c.ID))
			case c.ctx.Err() == nil:
				logger.Log.Warn("Read error for client", logger.WithUserID(c.UserID), logger.WithConnID(c.ID), zap.Error(err))
				c.hub.metrics.Errors.Add(1)
			}
			return
		}

		if err := c.Receive(data); err != nil {
			return
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case data := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()

			if err != nil {
				if c.ctx.Err() == nil {
					logger.Log.Warn("Write error for client", logger.WithUserID(c.UserID), zap.Error(err))
					c.hub.metrics.Errors.Add(1)
				}
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.lastPingAt = time.Now().UTC()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Info("Ping failed, closing client", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		}
	}
}

// handleMessage routes incoming messages to appropriate handlers
func (c *Client) handleMessage(message *Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = FlexibleTime{Time: time.Now().UTC()}
	}

	switch message.Type {
	case MessageTypePing, "heartbeat": // "heartbeat" is an alias for ping
		c.handlePing(message)
		return
	}

	if handler, ok := c.hub.GetHandler(message.Type); ok {
		if err := handler(c, message); err != nil {
			logger.Log.Error("Handler error",
				zap.String("type", message.Type),
				logger.WithUserID(c.UserID),
				zap.Error(err))
			c.hub.metrics.Errors.Add(1)
			_ = c.Send(NewErrorReply(message, ErrCodeHandlerError, fmt.Sprintf("Failed to process %s", message.Type)))
		}
		return
	}

	logger.Log.Warn("Unknown message type",
		logger.WithUserID(c.UserID),
		zap.String("type", message.Type))
	_ = c.Send(NewErrorReply(message, ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", message.Type)))
}

// handlePing responds to ping messages with pong
func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	var latency int64
	if ping.ClientTime > 0 {
		latency = serverTime - ping.ClientTime
	}

	// Best-effort, the connection may be closing
	_ = c.Send(NewReply(message, MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    latency,
	}))
}

// Send queues a message for this connection only
func (c *Client) Send(message *Message) error {
	if c.State() == StateClosed {
		return ErrClientClosed
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		c.hub.metrics.MessagesSent.Add(1)
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendError sends an uncorrelated error message to the client
func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

// writeNow bypasses the queue. Used for the shutdown notice, which must go
// out before the close frame.
func (c *Client) writeNow(ctx context.Context, data []byte) {
	if c.conn == nil {
		select {
		case c.send <- data:
		default:
		}
		return
	}

	wctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	_ = c.conn.Write(wctx, websocket.MessageText, data)
}

// Context is cancelled when the client closes
func (c *Client) Context() context.Context {
	return c.ctx
}

// State returns the current lifecycle state
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s ConnState) (prev ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev = c.state
	c.state = s
	return prev
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	return c.State() == StateClosed
}

// GetInfo returns client information
func (c *Client) GetInfo() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		State:       c.state.String(),
		ConnectedAt: c.ConnectedAt,
		LastPingAt:  c.lastPingAt,
		RemoteAddr:  c.RemoteAddr,
		UserAgent:   c.UserAgent,
	}
}

// ClientInfo represents public client information
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPingAt  time.Time `json:"last_ping_at"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`
}
