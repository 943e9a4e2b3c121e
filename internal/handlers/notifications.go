package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/util"
	"github.com/kinfolk/backend/internal/websocket"
)

// GetNotifications gets the user's notifications with the unread count
// GET /api/v1/notifications
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit := util.ClampLimit(c.Query("limit"), 20, 100)
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	notifs, err := h.notifications.ListNotifications(ctx, userID, limit, offset)
	if err != nil {
		util.RespondInternalError(c, "failed to get notifications")
		return
	}
	unread, err := h.notifications.CountUnread(ctx, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to get notification counts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifs,
		"unread":        unread,
		"meta": gin.H{
			"limit":  limit,
			"offset": offset,
			"count":  len(notifs),
		},
	})
}

// GetNotificationCounts gets just the counts for badge display
// GET /api/v1/notifications/counts
func (h *Handlers) GetNotificationCounts(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	unread, err := h.notifications.CountUnread(ctx, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to get notification counts")
		return
	}
	total, err := h.notifications.CountTotal(ctx, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to get notification counts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unread": unread,
		"total":  total,
	})
}

// MarkNotificationsRead marks the given notifications read, or all of them
// when no ids are sent. Other tabs get the new badge count.
// POST /api/v1/notifications/read
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	// An empty body means "all"
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	updated, err := h.notifications.MarkRead(ctx, userID, req.IDs)
	if err != nil {
		util.RespondInternalError(c, "failed to mark notifications read")
		return
	}
	unread, err := h.notifications.CountUnread(ctx, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to get notification counts")
		return
	}

	if updated > 0 && h.wsHandler != nil {
		h.wsHandler.GetHub().Publish(userID, websocket.NewMessage(websocket.MessageTypeNotificationCount,
			websocket.NotificationCountPayload{UnreadCount: unread}))
	}

	c.JSON(http.StatusOK, gin.H{
		"updated": updated,
		"unread":  unread,
	})
}
