package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/auth"
	apierrors "github.com/kinfolk/backend/internal/errors"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/util"
	"go.uber.org/zap"
)

var errNoToken = errors.New("no authentication token provided")

// Authenticator verifies a bearer token and returns the user id it carries
type Authenticator interface {
	Verify(token string) (string, error)
}

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub            *Hub
	auth           Authenticator
	presence       *Presence
	originPatterns []string
}

// NewHandler creates a new WebSocket handler. originPatterns follows
// websocket.AcceptOptions; "*" accepts any origin.
func NewHandler(hub *Hub, authenticator Authenticator, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		auth:           authenticator,
		originPatterns: originPatterns,
	}
}

// SetPresence lets the REST handlers answer visibility-aware presence queries
func (h *Handler) SetPresence(p *Presence) {
	h.presence = p
}

// HandleWebSocket authenticates and upgrades the request, then serves the
// connection until it closes.
// Authentication is done via JWT token in query param: ?token=...
// Or via Authorization header: Bearer <token>
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Debug("WebSocket auth failed", logger.WithIP(c.ClientIP()), zap.Error(err))
		util.RespondWithAPIError(c, apierrors.Unauthorized("authentication failed"))
		return
	}

	if h.hub.IsClosed() {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("real-time service"))
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, h.acceptOptions())
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", logger.WithUserID(userID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, userID)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	// Queued before Open so it precedes the presence snapshot
	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Welcome to Kinfolk",
		Data: map[string]interface{}{
			"user_id":       userID,
			"connection_id": client.ID,
			"server_time":   time.Now().UTC().UnixMilli(),
		},
	}))

	if err := client.Open(c.Request.Context()); err != nil {
		logger.Log.Info("Refusing connection", logger.WithUserID(userID), zap.Error(err))
		client.CloseWithStatus(websocket.StatusTryAgainLater, "server shutting down")
		return
	}

	go client.WritePump()
	client.ReadPump() // Blocks until the client disconnects
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}
	for _, origin := range h.originPatterns {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = h.originPatterns
	return opts
}

// authenticateRequest extracts and verifies the token. The query parameter
// wins over the header because browsers cannot set headers on WebSocket
// requests.
func (h *Handler) authenticateRequest(c *gin.Context) (string, error) {
	token := c.Query("token")
	if token == "" {
		token = auth.TokenFromHeader(c.GetHeader("Authorization"))
	}
	if token == "" {
		return "", errNoToken
	}
	return h.auth.Verify(token)
}

// HandleOnlineStatus checks if specific users are online. Users who hide
// their presence are reported offline.
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "user_ids is required")
		return
	}
	if len(req.UserIDs) > 500 {
		util.RespondValidationError(c, "user_ids", "at most 500 users per request")
		return
	}

	statuses := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		statuses[userID] = h.IsOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// IsOnline is the presence query exposed to REST collaborators
func (h *Handler) IsOnline(userID string) bool {
	if h.presence != nil {
		return h.presence.IsVisiblyOnline(userID)
	}
	return h.hub.IsOnline(userID)
}

// HandleMetrics returns WebSocket metrics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": h.hub.OnlineUsers(),
		"timestamp":    time.Now().UTC(),
	})
}

// Shutdown gracefully shuts down the WebSocket handler
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// GetHub returns the hub for external access
func (h *Handler) GetHub() *Hub {
	return h.hub
}
