package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kinfolk/backend/internal/models"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	// Try to unmarshal as Unix milliseconds (integer)
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}
	if str == "" {
		ft.Time = time.Time{}
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always outputs RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	// Client -> server
	MessageTypeSendDirectMessage = "send_direct_message"

	// Server -> client
	MessageTypeDirectMessage     = "dm"
	MessageTypePresence          = "presence"
	MessageTypeNotification      = "notification"
	MessageTypeNotificationCount = "notification_count"
)

// Error codes carried in ErrorPayload.Code
const (
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInvalidJSON      = "invalid_json"
	ErrCodeUnknownType      = "unknown_type"
	ErrCodeHandlerError     = "handler_error"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a client-chosen identifier used to correlate replies
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	if original != nil {
		msg.ReplyTo = original.ID
	}
	return msg
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// NewErrorReply creates an error correlated to the message that caused it
func NewErrorReply(original *Message, code, message string) *Message {
	msg := NewErrorMessage(code, message)
	if original != nil {
		msg.ReplyTo = original.ID
	}
	return msg
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SystemPayload represents system event payloads
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// PresencePayload announces an online/offline transition
type PresencePayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// SendDirectMessagePayload is the body of a send_direct_message request.
// Any sender field supplied by the client is ignored.
type SendDirectMessagePayload struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// DirectMessagePayload is the canonical persisted message pushed to both parties
type DirectMessagePayload struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDirectMessagePayload converts a stored message
func NewDirectMessagePayload(m *models.DirectMessage) DirectMessagePayload {
	return DirectMessagePayload{
		ID:        m.ID,
		From:      m.SenderID,
		To:        m.RecipientID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// NotificationPayload summarises a stored notification
type NotificationPayload struct {
	ID        string                  `json:"id"`
	Kind      models.NotificationKind `json:"kind"`
	ActorID   *string                 `json:"actor_id,omitempty"`
	PostID    *string                 `json:"post_id,omitempty"`
	CommentID *string                 `json:"comment_id,omitempty"`
	MessageID *string                 `json:"message_id,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewNotificationPayload converts a stored notification
func NewNotificationPayload(n *models.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		Kind:      n.Kind,
		ActorID:   n.ActorID,
		PostID:    n.PostID,
		CommentID: n.CommentID,
		MessageID: n.MessageID,
		CreatedAt: n.CreatedAt,
	}
}

// NotificationCountPayload indicates unread notification count changed
type NotificationCountPayload struct {
	UnreadCount int64 `json:"unread_count"`
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
