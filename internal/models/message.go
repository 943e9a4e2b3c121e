package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxMessageLength caps direct message content, counted in runes
const MaxMessageLength = 4000

// DirectMessage is a persisted one-to-one message. Only ReadAt changes after
// creation.
type DirectMessage struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	SenderID    string     `gorm:"type:uuid;not null;index:idx_dm_pair,priority:1" json:"from"`
	RecipientID string     `gorm:"type:uuid;not null;index:idx_dm_pair,priority:2;index" json:"to"`
	Sender      User       `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"-"`
	Recipient   User       `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"-"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// IsRead reports whether the recipient has read the message
func (m *DirectMessage) IsRead() bool {
	return m.ReadAt != nil
}

func (m *DirectMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}
