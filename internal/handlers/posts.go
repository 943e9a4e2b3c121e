package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/kinfolk/backend/internal/util"
	"go.uber.org/zap"
)

// CreatePost publishes a text post. @mentions notify the mentioned users.
// POST /api/v1/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required,min=1,max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	post := &models.Post{UserID: userID, Content: req.Content}
	if err := h.posts.CreatePost(ctx, post); err != nil {
		util.RespondInternalError(c, "failed to create post")
		return
	}
	metrics.Application().PostsCreated.Inc()

	h.processMentions(ctx, userID, req.Content, post.ID, "")

	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// GetPost returns a single post
// GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	post, err := h.posts.GetPost(c.Request.Context(), c.Param("id"))
	if util.HandleDBError(c, err, "post") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// LikePost likes a post and notifies its author
// POST /api/v1/posts/:id/like
func (h *Handlers) LikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	post, err := h.posts.GetPost(ctx, c.Param("id"))
	if util.HandleDBError(c, err, "post") {
		return
	}

	if err := h.posts.LikePost(ctx, post.ID, userID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			util.RespondConflict(c, "like")
			return
		}
		util.RespondInternalError(c, "failed to like post")
		return
	}
	metrics.Application().LikesTotal.Inc()

	h.notifyUser(ctx, userID, post.UserID, models.Notification{
		Kind:   models.NotificationLike,
		PostID: models.StringPtr(post.ID),
	})

	c.JSON(http.StatusOK, gin.H{"status": "liked", "like_count": post.LikeCount + 1})
}

// UnlikePost removes a like. No notification is sent.
// DELETE /api/v1/posts/:id/like
func (h *Handlers) UnlikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	err := h.posts.UnlikePost(c.Request.Context(), c.Param("id"), userID)
	if errors.Is(err, repository.ErrNotLiked) {
		util.RespondNotFound(c, "like")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "failed to unlike post")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unliked"})
}

// SharePost shares a post and notifies its author
// POST /api/v1/posts/:id/share
func (h *Handlers) SharePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	post, err := h.posts.GetPost(ctx, c.Param("id"))
	if util.HandleDBError(c, err, "post") {
		return
	}

	share, err := h.posts.SharePost(ctx, post.ID, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to share post")
		return
	}
	metrics.Application().SharesTotal.Inc()

	h.notifyUser(ctx, userID, post.UserID, models.Notification{
		Kind:   models.NotificationShare,
		PostID: models.StringPtr(post.ID),
	})

	c.JSON(http.StatusCreated, gin.H{"share": share})
}

// processMentions notifies every existing user mentioned in content.
// Unknown usernames are ignored.
func (h *Handlers) processMentions(ctx context.Context, actorID, content, postID, commentID string) {
	usernames := util.ExtractMentions(content)
	if len(usernames) == 0 {
		return
	}

	users, err := h.users.GetUsersByUsernames(ctx, usernames)
	if err != nil {
		logger.Log.Warn("Failed to resolve mentions", logger.WithPostID(postID), zap.Error(err))
		return
	}

	for _, u := range users {
		if u.ID == actorID {
			continue
		}
		metrics.Application().MentionsTotal.Inc()
		h.notifyUser(ctx, actorID, u.ID, models.Notification{
			Kind:      models.NotificationMention,
			PostID:    models.StringPtr(postID),
			CommentID: models.StringPtr(commentID),
		})
	}
}
