// Package websocket is the real-time layer: a connection registry keyed by
// user, per-user channels, presence, direct messages and notification push.
// Uses github.com/coder/websocket as the transport.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"go.uber.org/zap"
)

// Hub is the connection registry. Every user id maps to the set of that
// user's open clients; publishing to a user reaches exactly that set.
// A Hub is created by the server's composition root and passed to whoever
// needs it.
type Hub struct {
	// Registered clients by user ID for targeted messaging
	clients map[string]map[*Client]struct{}

	// All clients for broadcasting
	allClients map[*Client]struct{}

	// Guards clients and allClients
	mu sync.RWMutex

	metrics *Metrics
	prom    *metrics.Metrics

	handlers   map[string]MessageHandler
	handlersMu sync.RWMutex

	rateLimitConfig RateLimitConfig

	// Optional collaborators, set before serving
	observer ConnectionObserver
	relay    Relay

	closed atomic.Bool
}

// Metrics tracks WebSocket statistics
type Metrics struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines per-connection inbound rate limiting
type RateLimitConfig struct {
	// MaxMessagesPerSecond per client
	MaxMessagesPerSecond int
	// BurstSize allows short bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// MessageHandler processes incoming messages of a specific type
type MessageHandler func(client *Client, message *Message) error

// ConnectionObserver takes over registration so it can act on presence
// transitions. Connect must register c with the hub and return the
// registration error; Disconnect must unregister it.
type ConnectionObserver interface {
	Connect(ctx context.Context, c *Client) error
	Disconnect(c *Client)
}

// Relay forwards encoded envelopes to other server instances. Forward must
// not block. An empty userID means broadcast.
type Relay interface {
	Forward(userID string, data []byte)
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		metrics:         &Metrics{},
		prom:            metrics.Get(),
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// SetObserver installs the connection observer (the presence broadcaster)
func (h *Hub) SetObserver(o ConnectionObserver) {
	h.observer = o
}

// SetRelay installs the cross-instance relay
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// RegisterHandler registers a handler for a specific message type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[msgType] = handler
	logger.Log.Debug("Registered WebSocket handler", zap.String("type", msgType))
}

// GetHandler returns the handler for a message type
func (h *Hub) GetHandler(msgType string) (MessageHandler, bool) {
	h.handlersMu.RLock()
	defer h.handlersMu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// Register adds c to its user's set and reports whether it is the user's
// first open connection. A hub that is shutting down refuses new clients
// with ErrHubClosed. Registering the same client twice is a programming
// error and panics.
func (h *Hub) Register(c *Client) (first bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Shutdown flips closed under mu, so a client is either refused here or
	// in its snapshot
	if h.closed.Load() {
		return false, ErrHubClosed
	}
	if _, ok := h.allClients[c]; ok {
		panic(fmt.Sprintf("websocket: connection %s registered twice", c.ID))
	}

	set := h.clients[c.UserID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	h.allClients[c] = struct{}{}

	h.metrics.TotalConnections.Add(1)
	active := h.metrics.ActiveConnections.Add(1)
	h.prom.WSConnectionsTotal.Inc()
	h.prom.WSConnectionsActive.Inc()
	h.prom.WSUsersOnline.Set(float64(len(h.clients)))

	logger.Log.Info("Client connected",
		logger.WithUserID(c.UserID),
		logger.WithConnID(c.ID),
		zap.Int("user_connections", len(set)),
		zap.Int64("active", active))

	return len(set) == 1, nil
}

// Unregister removes c and reports whether it was the user's last open
// connection. Unregistering an unknown client returns false.
func (h *Hub) Unregister(c *Client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[c]; !ok {
		return false
	}
	delete(h.allClients, c)

	set := h.clients[c.UserID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
		last = true
	}

	active := h.metrics.ActiveConnections.Add(-1)
	h.prom.WSConnectionsActive.Dec()
	h.prom.WSUsersOnline.Set(float64(len(h.clients)))

	logger.Log.Info("Client disconnected",
		logger.WithUserID(c.UserID),
		logger.WithConnID(c.ID),
		zap.Int64("active", active))

	return last
}

// attach runs the connect side of the lifecycle for a client being opened
func (h *Hub) attach(ctx context.Context, c *Client) error {
	if h.observer != nil {
		return h.observer.Connect(ctx, c)
	}
	_, err := h.Register(c)
	return err
}

// detach runs the disconnect side of the lifecycle
func (h *Hub) detach(c *Client) {
	if h.observer != nil {
		h.observer.Disconnect(c)
		return
	}
	h.Unregister(c)
}

// Publish delivers msg to every open connection of userID and returns how
// many local connections it was queued on. A user without connections is a
// silent no-op; nothing is stored for later.
func (h *Hub) Publish(userID string, msg *Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		h.metrics.Errors.Add(1)
		return 0
	}

	n := h.deliver(userID, data, msg.Type)
	if h.relay != nil {
		h.relay.Forward(userID, data)
	}
	return n
}

// PublishMany sends one message to several users, encoding it once
func (h *Hub) PublishMany(userIDs []string, msg *Message) int {
	if len(userIDs) == 0 {
		return 0
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		h.metrics.Errors.Add(1)
		return 0
	}

	n := 0
	for _, userID := range userIDs {
		n += h.deliver(userID, data, msg.Type)
		if h.relay != nil {
			h.relay.Forward(userID, data)
		}
	}
	return n
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg *Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Failed to encode broadcast", zap.String("type", msg.Type), zap.Error(err))
		h.metrics.Errors.Add(1)
		return 0
	}

	n := h.deliverAll(data, msg.Type)
	if h.relay != nil {
		h.relay.Forward("", data)
	}
	return n
}

// BroadcastExcept sends a message to every connected client not owned by
// userID. Other instances receive it as a plain broadcast.
func (h *Hub) BroadcastExcept(userID string, msg *Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Failed to encode broadcast", zap.String("type", msg.Type), zap.Error(err))
		h.metrics.Errors.Add(1)
		return 0
	}

	h.mu.RLock()
	n := 0
	for c := range h.allClients {
		if c.UserID != userID && h.enqueue(c, data, msg.Type) {
			n++
		}
	}
	h.mu.RUnlock()

	if h.relay != nil {
		h.relay.Forward("", data)
	}
	return n
}

// DeliverLocal hands an already encoded envelope to local connections only.
// The relay uses it for traffic from other instances.
func (h *Hub) DeliverLocal(userID string, data []byte) int {
	if userID == "" {
		return h.deliverAll(data, "relay")
	}
	return h.deliver(userID, data, "relay")
}

func (h *Hub) deliver(userID string, data []byte, msgType string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients[userID] {
		if h.enqueue(c, data, msgType) {
			n++
		}
	}
	return n
}

func (h *Hub) deliverAll(data []byte, msgType string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.allClients {
		if h.enqueue(c, data, msgType) {
			n++
		}
	}
	return n
}

// enqueue never blocks. A client whose buffer is full is dropped so one slow
// reader cannot stall everyone else. Caller holds h.mu.RLock.
func (h *Hub) enqueue(c *Client, data []byte, msgType string) bool {
	select {
	case c.send <- data:
		h.metrics.MessagesSent.Add(1)
		h.prom.WSEventsPublished.WithLabelValues(msgType).Inc()
		return true
	default:
		h.metrics.ConnectionsDropped.Add(1)
		h.prom.WSClientsDropped.Inc()
		logger.Log.Warn("Send buffer full, dropping client",
			logger.WithUserID(c.UserID),
			logger.WithConnID(c.ID))
		// Close takes locks the caller may hold
		go c.CloseWithStatus(websocket.StatusPolicyViolation, "send buffer full")
		return false
	}
}

// IsOnline checks if a user has any active connections
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount returns the number of connections for a user
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// OnlineUsers returns all online user IDs in sorted order
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	h.mu.RUnlock()

	sort.Strings(users)
	return users
}

// ClientsFor returns a snapshot of a user's connections
func (h *Hub) ClientsFor(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		out = append(out, c)
	}
	return out
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	h.mu.RLock()
	users := len(h.clients)
	h.mu.RUnlock()

	return MetricsSnapshot{
		TotalConnections:   h.metrics.TotalConnections.Load(),
		ActiveConnections:  h.metrics.ActiveConnections.Load(),
		OnlineUsers:        int64(users),
		MessagesReceived:   h.metrics.MessagesReceived.Load(),
		MessagesSent:       h.metrics.MessagesSent.Load(),
		Errors:             h.metrics.Errors.Load(),
		ConnectionsDropped: h.metrics.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	OnlineUsers        int64 `json:"online_users"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// String implements Stringer for MetricsSnapshot
func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d users=%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections, m.OnlineUsers,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// IsClosed reports whether Shutdown has been called
func (h *Hub) IsClosed() bool {
	return h.closed.Load()
}

// Shutdown tells every client the server is going away and closes them.
// Presence observers see each disconnect, so offline state is persisted.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		return nil
	}
	h.closed.Store(true)
	clients := make([]*Client, 0, len(h.allClients))
	for c := range h.allClients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	logger.Log.Info("Shutting down WebSocket hub", zap.Int("connections", len(clients)))

	notice, _ := json.Marshal(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "server_shutdown",
		Message: "Server is restarting, please reconnect",
	}))

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.writeNow(ctx, notice)
			c.CloseWithStatus(websocket.StatusGoingAway, "server shutdown")
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("WebSocket hub shutdown complete", zap.String("metrics", h.GetMetrics().String()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// SetRateLimitConfig updates the rate limiting configuration for new clients
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.handlersMu.RLock()
	defer h.handlersMu.RUnlock()
	return h.rateLimitConfig
}
