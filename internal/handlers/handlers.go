package handlers

import (
	"context"

	"github.com/kinfolk/backend/internal/auth"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/kinfolk/backend/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	auth          auth.AuthServiceInterface
	users         repository.UserRepository
	friends       repository.FriendRepository
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
	posts         repository.PostRepository

	wsHandler *websocket.Handler
	presence  *websocket.Presence
	messenger *websocket.Messenger
	notifier  websocket.NotificationSink
}

// NewHandlers creates a new handlers instance backed by db
func NewHandlers(db *gorm.DB, authService auth.AuthServiceInterface) *Handlers {
	return &Handlers{
		auth:          authService,
		users:         repository.NewUserRepository(db),
		friends:       repository.NewFriendRepository(db),
		messages:      repository.NewMessageRepository(db),
		notifications: repository.NewNotificationRepository(db),
		posts:         repository.NewPostRepository(db),
	}
}

// SetWebSocketHandler sets the WebSocket handler for real-time events
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// SetPresence sets the presence broadcaster so friend and preference changes
// take effect on live connections
func (h *Handlers) SetPresence(p *websocket.Presence) {
	h.presence = p
}

// SetMessenger sets the direct message pipeline shared with the WebSocket path
func (h *Handlers) SetMessenger(m *websocket.Messenger) {
	h.messenger = m
}

// SetNotifier sets where notifications are sent
func (h *Handlers) SetNotifier(n websocket.NotificationSink) {
	h.notifier = n
}

// notifyUser hands a notification to the notifier. Users are never notified
// about their own actions.
func (h *Handlers) notifyUser(ctx context.Context, actorID, targetID string, n models.Notification) {
	if h.notifier == nil || targetID == "" || actorID == targetID {
		return
	}
	n.UserID = targetID
	n.ActorID = models.StringPtr(actorID)

	logger.Log.Debug("Queueing notification",
		logger.WithUserID(targetID),
		logger.WithKind(string(n.Kind)),
		zap.String("actor_id", actorID))
	h.notifier.Notify(ctx, n)
}

// isOnline answers presence queries the way other users are allowed to see them
func (h *Handlers) isOnline(userID string) bool {
	switch {
	case h.presence != nil:
		return h.presence.IsVisiblyOnline(userID)
	case h.wsHandler != nil:
		return h.wsHandler.IsOnline(userID)
	}
	return false
}
