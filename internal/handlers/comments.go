package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/kinfolk/backend/internal/util"
)

// CreateComment creates a new comment on a post
// POST /api/v1/posts/:id/comments
func (h *Handlers) CreateComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Content  string  `json:"content" binding:"required,min=1,max=2000"`
		ParentID *string `json:"parent_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	post, err := h.posts.GetPost(ctx, c.Param("id"))
	if util.HandleDBError(c, err, "post") {
		return
	}

	// Replies must point at a comment on the same post
	var parent *models.Comment
	if req.ParentID != nil && *req.ParentID != "" {
		parent, err = h.posts.GetComment(ctx, *req.ParentID)
		if errors.Is(err, repository.ErrCommentNotFound) || (err == nil && parent.PostID != post.ID) {
			util.RespondValidationError(c, "parent_id", "parent comment not found")
			return
		}
		if err != nil {
			util.RespondInternalError(c, "failed to load parent comment")
			return
		}
		// Only one level of nesting: a reply to a reply hangs off the thread root
		if parent.ParentID != nil {
			req.ParentID = parent.ParentID
		}
	} else {
		req.ParentID = nil
	}

	comment := &models.Comment{
		PostID:   post.ID,
		UserID:   userID,
		Content:  req.Content,
		ParentID: req.ParentID,
	}
	if err := h.posts.CreateComment(ctx, comment); err != nil {
		util.RespondInternalError(c, "failed to create comment")
		return
	}

	kind := "top_level"
	if parent != nil {
		kind = "reply"
	}
	metrics.Application().CommentsTotal.WithLabelValues(kind).Inc()

	h.notifyUser(ctx, userID, post.UserID, models.Notification{
		Kind:      models.NotificationComment,
		PostID:    models.StringPtr(post.ID),
		CommentID: models.StringPtr(comment.ID),
	})
	// The post author already heard about this comment
	if parent != nil && parent.UserID != post.UserID {
		h.notifyUser(ctx, userID, parent.UserID, models.Notification{
			Kind:      models.NotificationComment,
			PostID:    models.StringPtr(post.ID),
			CommentID: models.StringPtr(comment.ID),
		})
	}
	h.processMentions(ctx, userID, req.Content, post.ID, comment.ID)

	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// ListComments returns a post's comments, oldest first
// GET /api/v1/posts/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	ctx := c.Request.Context()
	post, err := h.posts.GetPost(ctx, c.Param("id"))
	if util.HandleDBError(c, err, "post") {
		return
	}

	limit := util.ClampLimit(c.Query("limit"), 50, 200)
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)
	if offset < 0 {
		offset = 0
	}

	comments, err := h.posts.ListComments(ctx, post.ID, limit, offset)
	if err != nil {
		util.RespondInternalError(c, "failed to load comments")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"meta": gin.H{
			"limit":  limit,
			"offset": offset,
			"count":  len(comments),
		},
	})
}
