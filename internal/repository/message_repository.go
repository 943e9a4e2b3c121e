package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kinfolk/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrRecipientNotFound is returned when a message references an unknown user
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrMessageNotFound   = errors.New("message not found")
)

// MessageRepository persists direct messages
type MessageRepository interface {
	// CreateMessage stores a message with a server-assigned id and timestamp.
	// Unknown users are rejected by the foreign keys, not by a lookup.
	CreateMessage(ctx context.Context, senderID, recipientID, content string) (*models.DirectMessage, error)
	GetMessage(ctx context.Context, messageID string) (*models.DirectMessage, error)
	GetConversation(ctx context.Context, userID, otherID string, limit int, before *time.Time) ([]*models.DirectMessage, error)
	MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) CreateMessage(ctx context.Context, senderID, recipientID, content string) (*models.DirectMessage, error) {
	msg := &models.DirectMessage{
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
	}

	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(msg).Error
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepository) GetMessage(ctx context.Context, messageID string) (*models.DirectMessage, error) {
	var msg models.DirectMessage
	err := r.db.WithContext(ctx).Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetConversation returns messages between two users, newest first. before
// pages backwards from a timestamp.
func (r *messageRepository) GetConversation(ctx context.Context, userID, otherID string, limit int, before *time.Time) ([]*models.DirectMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userID, otherID, otherID, userID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}

	var msgs []*models.DirectMessage
	err := q.Order("created_at DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

// MarkConversationRead stamps read_at on every unread message otherID sent to readerID
func (r *messageRepository) MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DirectMessage{}).
		Where("recipient_id = ? AND sender_id = ? AND read_at IS NULL", readerID, otherID).
		Update("read_at", time.Now().UTC())
	return result.RowsAffected, result.Error
}

func (r *messageRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DirectMessage{}).
		Where("recipient_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}
