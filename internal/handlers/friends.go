package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/kinfolk/backend/internal/errors"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/kinfolk/backend/internal/util"
	"go.uber.org/zap"
)

// SendFriendRequest asks another user to become friends
// POST /api/v1/friends/requests
func (h *Handlers) SendFriendRequest(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "user_id is required")
		return
	}

	fr, err := h.friends.CreateRequest(c.Request.Context(), userID, req.UserID)
	switch {
	case errors.Is(err, repository.ErrSelfFriendRequest):
		util.RespondValidationError(c, "user_id", "cannot send a friend request to yourself")
		return
	case errors.Is(err, repository.ErrAlreadyFriends):
		util.RespondWithAPIError(c, apierrors.AlreadyExists("friendship"))
		return
	case errors.Is(err, repository.ErrDuplicate):
		util.RespondConflict(c, "friend request")
		return
	case util.HandleDBError(c, err, "user"):
		return
	}

	metrics.Application().FriendRequestsTotal.WithLabelValues("sent").Inc()
	c.JSON(http.StatusCreated, gin.H{"request": fr})
}

// ListFriendRequests returns pending requests addressed to the current user
// GET /api/v1/friends/requests
func (h *Handlers) ListFriendRequests(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	reqs, err := h.friends.ListIncomingRequests(c.Request.Context(), userID)
	if err != nil {
		util.RespondInternalError(c, "failed to load friend requests")
		return
	}

	out := make([]gin.H, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, gin.H{
			"id":         r.ID,
			"requester":  r.Requester.Public(),
			"status":     r.Status,
			"created_at": r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

// AcceptFriendRequest accepts a pending request. The requester is notified
// and both users start seeing each other's presence.
// POST /api/v1/friends/requests/:id/accept
func (h *Handlers) AcceptFriendRequest(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	fr, err := h.friends.AcceptRequest(ctx, c.Param("id"), userID)
	if errors.Is(err, repository.ErrAlreadyFriends) {
		util.RespondWithAPIError(c, apierrors.AlreadyExists("friendship"))
		return
	}
	if util.HandleDBError(c, err, "friend request") {
		return
	}

	metrics.Application().FriendRequestsTotal.WithLabelValues("accepted").Inc()
	if h.presence != nil {
		h.presence.Befriended(fr.RequesterID, fr.TargetID)
	}
	h.notifyUser(ctx, userID, fr.RequesterID, models.Notification{
		Kind: models.NotificationFriendAccept,
	})

	logger.Log.Info("Friend request accepted",
		logger.WithUserID(userID),
		zap.String("requester_id", fr.RequesterID))
	c.JSON(http.StatusOK, gin.H{"request": fr})
}

// RejectFriendRequest declines a pending request without telling the requester
// POST /api/v1/friends/requests/:id/reject
func (h *Handlers) RejectFriendRequest(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	fr, err := h.friends.RejectRequest(c.Request.Context(), c.Param("id"), userID)
	if util.HandleDBError(c, err, "friend request") {
		return
	}

	metrics.Application().FriendRequestsTotal.WithLabelValues("rejected").Inc()
	c.JSON(http.StatusOK, gin.H{"request": fr})
}

// ListFriends returns the current user's friends with their visible presence
// GET /api/v1/friends
func (h *Handlers) ListFriends(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	friends, err := h.friends.GetFriends(c.Request.Context(), userID)
	if err != nil {
		util.RespondInternalError(c, "failed to load friends")
		return
	}

	out := make([]models.PublicUser, 0, len(friends))
	for _, f := range friends {
		p := f.Public()
		p.IsOnline = h.isOnline(f.ID)
		out = append(out, p)
	}
	c.JSON(http.StatusOK, gin.H{"friends": out, "count": len(out)})
}

// Unfriend removes a friendship in both directions
// DELETE /api/v1/friends/:id
func (h *Handlers) Unfriend(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	otherID := c.Param("id")

	err := h.friends.Unfriend(c.Request.Context(), userID, otherID)
	if errors.Is(err, repository.ErrNotFriends) {
		util.RespondNotFound(c, "friendship")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "failed to remove friend")
		return
	}

	metrics.Application().UnfriendsTotal.Inc()
	if h.presence != nil {
		h.presence.Unfriended(userID, otherID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
