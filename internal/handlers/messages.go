package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apierrors "github.com/kinfolk/backend/internal/errors"
	"github.com/kinfolk/backend/internal/util"
	"github.com/kinfolk/backend/internal/websocket"
)

// GetConversation returns the message history with another user, newest
// first. ?before=<RFC 3339> pages backwards.
// GET /api/v1/messages/:user_id
func (h *Handlers) GetConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	before, err := util.ParseTimeParam(c.Query("before"))
	if err != nil {
		util.RespondValidationError(c, "before", "must be an RFC 3339 timestamp")
		return
	}
	limit := util.ClampLimit(c.Query("limit"), 50, 100)

	msgs, err := h.messages.GetConversation(c.Request.Context(), userID, c.Param("user_id"), limit, before)
	if err != nil {
		util.RespondInternalError(c, "failed to load messages")
		return
	}

	meta := gin.H{
		"limit": limit,
		"count": len(msgs),
	}
	if len(msgs) == limit {
		meta["next_before"] = msgs[len(msgs)-1].CreatedAt
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "meta": meta})
}

// SendMessage sends a direct message through the same pipeline as the
// WebSocket send_direct_message event
// POST /api/v1/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if h.messenger == nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("messaging"))
		return
	}

	var req struct {
		To      string `json:"to"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	msg, err := h.messenger.Send(c.Request.Context(), userID, req.To, req.Content)
	switch {
	case errors.Is(err, websocket.ErrValidation):
		field := "content"
		if errors.Is(err, websocket.ErrInvalidRecipient) {
			field = "to"
		}
		util.RespondValidationError(c, field, strings.TrimPrefix(err.Error(), websocket.ErrValidation.Error()+": "))
		return
	case errors.Is(err, websocket.ErrSendFailed):
		util.RespondWithAPIError(c, apierrors.SendFailed("message could not be sent"))
		return
	case err != nil:
		util.RespondInternalError(c, "failed to send message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": websocket.NewDirectMessagePayload(msg)})
}

// MarkConversationRead marks every message from :user_id to the current user
// as read
// POST /api/v1/messages/:user_id/read
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	updated, err := h.messages.MarkConversationRead(ctx, userID, c.Param("user_id"))
	if err != nil {
		util.RespondInternalError(c, "failed to mark messages read")
		return
	}
	unread, err := h.messages.CountUnread(ctx, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to count unread messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"updated":      updated,
		"unread_count": unread,
	})
}
