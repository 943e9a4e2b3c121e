package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/telemetry"
	"go.uber.org/zap"
)

var (
	// ErrValidation is returned for sends rejected before persistence
	ErrValidation = errors.New("invalid direct message")
	// ErrInvalidRecipient is the ErrValidation case for a missing or malformed recipient
	ErrInvalidRecipient = fmt.Errorf("%w", ErrValidation)
	// ErrSendFailed is returned when the message could not be stored
	ErrSendFailed = errors.New("direct message not sent")
)

const messageWriteTimeout = 10 * time.Second

// MessageStore persists direct messages
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID, recipientID, content string) (*models.DirectMessage, error)
}

// NotificationSink accepts fire-and-forget notifications
type NotificationSink interface {
	Notify(ctx context.Context, n models.Notification)
}

// Messenger is the direct message pipeline: validate, persist once, then
// publish the stored copy to both parties
type Messenger struct {
	hub    *Hub
	store  MessageStore
	notify NotificationSink
	events *telemetry.BusinessEvents
	prom   *metrics.Metrics
}

// NewMessenger creates the pipeline. notify may be nil.
func NewMessenger(hub *Hub, store MessageStore, notify NotificationSink) *Messenger {
	return &Messenger{
		hub:    hub,
		store:  store,
		notify: notify,
		events: telemetry.NewBusinessEvents(),
		prom:   metrics.Get(),
	}
}

// Register installs the send_direct_message handler on the hub
func (m *Messenger) Register() {
	m.hub.RegisterHandler(MessageTypeSendDirectMessage, m.HandleSendDirectMessage)
}

// ValidateDirectMessage trims content and checks it against the send rules
func ValidateDirectMessage(to, content string) (string, error) {
	content = strings.TrimSpace(content)
	switch {
	case strings.TrimSpace(to) == "":
		return "", fmt.Errorf("%w: recipient is required", ErrInvalidRecipient)
	case !validUserID(to):
		return "", fmt.Errorf("%w: recipient is malformed", ErrInvalidRecipient)
	case content == "":
		return "", fmt.Errorf("%w: content is empty", ErrValidation)
	case utf8.RuneCountInString(content) > models.MaxMessageLength:
		return "", fmt.Errorf("%w: content exceeds %d characters", ErrValidation, models.MaxMessageLength)
	}
	return content, nil
}

// validUserID accepts user ids in the canonical form they are issued in
func validUserID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

// Send runs the pipeline for senderID. The sender always comes from the
// authenticated caller, never from the request body.
func (m *Messenger) Send(ctx context.Context, senderID, recipientID, content string) (*models.DirectMessage, error) {
	content, err := ValidateDirectMessage(recipientID, content)
	if err != nil {
		m.prom.DirectMessagesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ctx, span := m.events.TraceDirectMessage(ctx, senderID, recipientID)

	wctx, cancel := context.WithTimeout(ctx, messageWriteTimeout)
	msg, err := m.store.CreateMessage(wctx, senderID, recipientID, content)
	cancel()
	if err != nil {
		m.prom.DirectMessagesTotal.WithLabelValues("failed").Inc()
		telemetry.EndSpan(span, err)
		logger.Log.Warn("Failed to persist direct message",
			logger.WithUserID(senderID),
			zap.String("recipient_id", recipientID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	event := NewMessage(MessageTypeDirectMessage, NewDirectMessagePayload(msg))
	delivered := m.hub.Publish(msg.RecipientID, event)
	if msg.SenderID != msg.RecipientID {
		delivered += m.hub.Publish(msg.SenderID, event)

		if !m.hub.IsOnline(msg.RecipientID) && m.notify != nil {
			m.notify.Notify(ctx, models.Notification{
				UserID:    msg.RecipientID,
				ActorID:   models.StringPtr(msg.SenderID),
				Kind:      models.NotificationDirectMessage,
				MessageID: models.StringPtr(msg.ID),
			})
		}
	}

	m.prom.DirectMessagesTotal.WithLabelValues("sent").Inc()
	telemetry.RecordDelivered(span, delivered)
	telemetry.EndSpan(span, nil)

	logger.Log.Debug("Direct message sent",
		logger.WithMessageID(msg.ID),
		logger.WithUserID(senderID),
		zap.String("recipient_id", msg.RecipientID),
		zap.Int("delivered", delivered))

	return msg, nil
}

// HandleSendDirectMessage is the MessageHandler for send_direct_message.
// Failures are answered on the sending connection, correlated by envelope id.
func (m *Messenger) HandleSendDirectMessage(client *Client, message *Message) error {
	var req SendDirectMessagePayload
	if err := message.ParsePayload(&req); err != nil {
		_ = client.Send(NewErrorReply(message, ErrCodeValidationFailed, "Malformed send_direct_message payload"))
		return nil
	}

	_, err := m.Send(client.Context(), client.UserID, req.To, req.Content)
	switch {
	case err == nil:
	case errors.Is(err, ErrValidation):
		_ = client.Send(NewErrorReply(message, ErrCodeValidationFailed, strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")))
	default:
		_ = client.Send(NewErrorReply(message, ErrCodeSendFailed, "Message could not be sent"))
	}
	return nil
}
