package models

import (
	"time"

	"gorm.io/gorm"
)

// Friendship is one direction of an undirected friend edge. Accepting a
// request writes both (a, b) and (b, a) so "friends of X" is one indexed query.
type Friendship struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_friendships_pair" json:"user_id"`
	FriendID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_friendships_pair;index" json:"friend_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Friend    User      `gorm:"foreignKey:FriendID" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// FriendRequestStatus is the lifecycle of a friend request
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a pending or answered request from Requester to Target
type FriendRequest struct {
	ID          string              `gorm:"primaryKey;type:uuid" json:"id"`
	RequesterID string              `gorm:"type:uuid;not null;index" json:"requester_id"`
	TargetID    string              `gorm:"type:uuid;not null;index" json:"target_id"`
	Requester   User                `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Target      User                `gorm:"foreignKey:TargetID" json:"-"`
	Status      FriendRequestStatus `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	RespondedAt *time.Time          `json:"responded_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Post is a minimal text post; it exists so likes, shares and comments have
// something to point at.
type Post struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"-"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	LikeCount int            `gorm:"default:0" json:"like_count"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Comment on a post. ParentID is set for threaded replies.
type Comment struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	PostID    string         `gorm:"type:uuid;not null;index" json:"post_id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"user_id"`
	ParentID  *string        `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Post      Post           `gorm:"foreignKey:PostID" json:"-"`
	User      User           `gorm:"foreignKey:UserID" json:"-"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// PostLike records that UserID liked PostID
type PostLike struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	PostID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_post_likes_pair" json:"post_id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_post_likes_pair" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PostShare records a share of PostID by UserID
type PostShare struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	PostID    string    `gorm:"type:uuid;not null;index" json:"post_id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	return nil
}

func (r *FriendRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	if r.Status == "" {
		r.Status = FriendRequestPending
	}
	return nil
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

func (l *PostLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateUUID()
	}
	return nil
}

func (s *PostShare) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = generateUUID()
	}
	return nil
}
