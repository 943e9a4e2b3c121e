package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// NotificationKind is the closed set of things a user can be notified about
type NotificationKind string

const (
	NotificationMention       NotificationKind = "mention"
	NotificationLike          NotificationKind = "like"
	NotificationComment       NotificationKind = "comment"
	NotificationShare         NotificationKind = "share"
	NotificationFriendAccept  NotificationKind = "friend_accept"
	NotificationDirectMessage NotificationKind = "direct_message"
)

var notificationKinds = map[NotificationKind]struct{}{
	NotificationMention:       {},
	NotificationLike:          {},
	NotificationComment:       {},
	NotificationShare:         {},
	NotificationFriendAccept:  {},
	NotificationDirectMessage: {},
}

// Valid reports whether k is one of the known kinds
func (k NotificationKind) Valid() bool {
	_, ok := notificationKinds[k]
	return ok
}

// ParseNotificationKind normalizes user input. "follow" is accepted as an
// alias for friend_accept.
func ParseNotificationKind(s string) (NotificationKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "follow" {
		return NotificationFriendAccept, nil
	}
	k := NotificationKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown notification kind %q", s)
	}
	return k, nil
}

// Notification is a persisted notice for UserID. The reference fields that
// apply depend on Kind (a friend_accept has no post, a like has no comment).
type Notification struct {
	ID        string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string           `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	User      User             `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ActorID   *string          `gorm:"type:uuid" json:"actor_id,omitempty"`
	Kind      NotificationKind `gorm:"type:varchar(32);not null" json:"kind"`
	PostID    *string          `gorm:"type:uuid" json:"post_id,omitempty"`
	CommentID *string          `gorm:"type:uuid" json:"comment_id,omitempty"`
	MessageID *string          `gorm:"type:uuid" json:"message_id,omitempty"`
	IsRead    bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time        `gorm:"index:idx_notifications_user_created,priority:2" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = generateUUID()
	}
	return nil
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
