package repository

import (
	"context"
	"time"

	"github.com/kinfolk/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository persists notifications. Rows are only created here
// and later flipped to read; the real-time layer never mutates them.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	CountTotal(ctx context.Context, userID string) (int64, error)
	// MarkRead marks the given notifications read, or all of them when ids is empty
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
	// DeleteReadBefore removes read notifications created before cutoff
	DeleteReadBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n == nil || n.UserID == "" || !n.Kind.Valid() {
		return ErrInvalidInput
	}
	n.IsRead = false
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(n).Error
}

func (r *notificationRepository) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var out []*models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) CountTotal(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	result := q.Update("is_read", true)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	if batch <= 0 {
		batch = 1000
	}
	// Bounded batches keep each delete short on large tables
	ids := r.db.Model(&models.Notification{}).
		Select("id").
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Limit(batch)
	result := r.db.WithContext(ctx).
		Where("id IN (?)", ids).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
