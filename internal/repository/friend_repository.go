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
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrAlreadyFriends        = errors.New("already friends")
	ErrSelfFriendRequest     = errors.New("cannot befriend yourself")
	ErrNotFriends            = errors.New("not friends")
)

// FriendRepository stores friend requests and the friendship graph
type FriendRepository interface {
	CreateRequest(ctx context.Context, requesterID, targetID string) (*models.FriendRequest, error)
	GetRequest(ctx context.Context, requestID string) (*models.FriendRequest, error)
	ListIncomingRequests(ctx context.Context, userID string) ([]*models.FriendRequest, error)
	AcceptRequest(ctx context.Context, requestID, targetID string) (*models.FriendRequest, error)
	RejectRequest(ctx context.Context, requestID, targetID string) (*models.FriendRequest, error)

	AreFriends(ctx context.Context, userID, otherID string) (bool, error)
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
	GetFriends(ctx context.Context, userID string) ([]*models.User, error)
	Unfriend(ctx context.Context, userID, otherID string) error
}

type friendRepository struct {
	db *gorm.DB
}

// NewFriendRepository creates a new friend repository
func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &friendRepository{db: db}
}

// CreateRequest opens a pending request. Duplicate pending requests and
// requests between existing friends are rejected.
func (r *friendRepository) CreateRequest(ctx context.Context, requesterID, targetID string) (*models.FriendRequest, error) {
	if requesterID == "" || targetID == "" {
		return nil, ErrInvalidInput
	}
	if requesterID == targetID {
		return nil, ErrSelfFriendRequest
	}

	friends, err := r.AreFriends(ctx, requesterID, targetID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	var pending int64
	err = r.db.WithContext(ctx).
		Model(&models.FriendRequest{}).
		Where("requester_id = ? AND target_id = ? AND status = ?", requesterID, targetID, models.FriendRequestPending).
		Count(&pending).Error
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ErrDuplicate
	}

	req := &models.FriendRequest{
		RequesterID: requesterID,
		TargetID:    targetID,
		Status:      models.FriendRequestPending,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(req).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return req, nil
}

// GetRequest loads a request with its requester
func (r *friendRepository) GetRequest(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Where("id = ?", requestID).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFriendRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListIncomingRequests returns pending requests addressed to userID, newest first
func (r *friendRepository) ListIncomingRequests(ctx context.Context, userID string) ([]*models.FriendRequest, error) {
	var reqs []*models.FriendRequest
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Where("target_id = ? AND status = ?", userID, models.FriendRequestPending).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// AcceptRequest marks the request accepted and writes both friendship rows
// in one transaction. Only the target may accept. A pending request in the
// other direction is accepted along with it. ErrAlreadyFriends means the
// edge existed and nothing changed.
func (r *friendRepository) AcceptRequest(ctx context.Context, requestID, targetID string) (*models.FriendRequest, error) {
	var req models.FriendRequest

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.loadPending(tx, requestID, targetID, &req); err != nil {
			return err
		}

		now := time.Now().UTC()
		accepted := map[string]interface{}{
			"status":       models.FriendRequestAccepted,
			"responded_at": now,
		}
		result := tx.Model(&models.FriendRequest{}).
			Where("id = ? AND status = ?", req.ID, models.FriendRequestPending).
			Updates(accepted)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrFriendRequestNotFound
		}
		req.Status = models.FriendRequestAccepted
		req.RespondedAt = &now

		err := tx.Model(&models.FriendRequest{}).
			Where("requester_id = ? AND target_id = ? AND status = ?", req.TargetID, req.RequesterID, models.FriendRequestPending).
			Updates(accepted).Error
		if err != nil {
			return err
		}

		edges := []models.Friendship{
			{UserID: req.RequesterID, FriendID: req.TargetID},
			{UserID: req.TargetID, FriendID: req.RequesterID},
		}
		result = tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&edges)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyFriends
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// RejectRequest marks a pending request rejected. Only the target may reject.
func (r *friendRepository) RejectRequest(ctx context.Context, requestID, targetID string) (*models.FriendRequest, error) {
	var req models.FriendRequest

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.loadPending(tx, requestID, targetID, &req); err != nil {
			return err
		}

		now := time.Now().UTC()
		req.Status = models.FriendRequestRejected
		req.RespondedAt = &now
		return tx.Model(&req).Updates(map[string]interface{}{
			"status":       req.Status,
			"responded_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *friendRepository) loadPending(tx *gorm.DB, requestID, targetID string, req *models.FriendRequest) error {
	err := tx.Where("id = ? AND target_id = ? AND status = ?", requestID, targetID, models.FriendRequestPending).
		First(req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrFriendRequestNotFound
	}
	return err
}

// AreFriends reports whether a friendship edge exists
func (r *friendRepository) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("user_id = ? AND friend_id = ?", userID, otherID).
		Count(&count).Error
	return count > 0, err
}

// GetFriendIDs returns the ids of everyone userID is friends with
func (r *friendRepository) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("user_id = ?", userID).
		Pluck("friend_id", &ids).Error
	return ids, err
}

// GetFriends returns userID's friends ordered by username
func (r *friendRepository) GetFriends(ctx context.Context, userID string) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN friendships ON friendships.friend_id = users.id").
		Where("friendships.user_id = ?", userID).
		Order("users.username ASC").
		Find(&users).Error
	return users, err
}

// Unfriend removes both directions of the edge
func (r *friendRepository) Unfriend(ctx context.Context, userID, otherID string) error {
	result := r.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", userID, otherID, otherID, userID).
		Delete(&models.Friendship{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFriends
	}
	return nil
}
