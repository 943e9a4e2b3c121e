package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kinfolk/backend/internal/models"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("already exists")
)

// UserRepository handles all database operations for users
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error)
	GetUsersByUsernames(ctx context.Context, usernames []string) ([]*models.User, error)
	UpdatePreferences(ctx context.Context, userID string, emailNotifications, showPresence *bool) error

	// Presence
	SetPresence(ctx context.Context, userID string, online bool, seenAt time.Time) error
	GetOnlineUserIDs(ctx context.Context) ([]string, error)

	GetTotalUserCount(ctx context.Context) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateUser inserts a user. A taken email or username yields ErrDuplicate.
func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return ErrInvalidInput
	}

	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// GetUser gets a user by ID
func (r *userRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUserByEmail gets a user by email (case-insensitive)
func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUserByUsername gets a user by username (case-insensitive)
func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?)", username).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUsers gets multiple users by IDs
func (r *userRepository) GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error) {
	var users []*models.User
	if len(userIDs) == 0 {
		return users, nil
	}

	err := r.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&users).Error

	return users, err
}

// GetUsersByUsernames resolves lowercase usernames, skipping unknown ones
func (r *userRepository) GetUsersByUsernames(ctx context.Context, usernames []string) ([]*models.User, error) {
	var users []*models.User
	if len(usernames) == 0 {
		return users, nil
	}

	err := r.db.WithContext(ctx).
		Where("LOWER(username) IN ?", usernames).
		Find(&users).Error

	return users, err
}

// UpdatePreferences updates whichever preference flags are non-nil
func (r *userRepository) UpdatePreferences(ctx context.Context, userID string, emailNotifications, showPresence *bool) error {
	updates := map[string]interface{}{}
	if emailNotifications != nil {
		updates["email_notifications"] = *emailNotifications
	}
	if showPresence != nil {
		updates["show_presence"] = *showPresence
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPresence records the online flag and last-seen time
func (r *userRepository) SetPresence(ctx context.Context, userID string, online bool, seenAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":    online,
			"last_seen_at": seenAt,
		}).Error
}

// GetOnlineUserIDs returns users whose persisted flag says online. Used to
// reset stale flags after a crash.
func (r *userRepository) GetOnlineUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_online = ?", true).
		Pluck("id", &ids).Error
	return ids, err
}

// GetTotalUserCount gets total user count
func (r *userRepository) GetTotalUserCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Count(&count).Error

	return count, err
}
