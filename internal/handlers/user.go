package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/util"
)

// GetUser returns another user's public profile
// GET /api/v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if util.HandleDBError(c, err, "user") {
		return
	}

	public := user.Public()
	// The live connection state wins over the persisted flag
	public.IsOnline = h.isOnline(user.ID)
	c.JSON(http.StatusOK, gin.H{"user": public})
}

// GetUserPresence reports whether a user is online as others may see it
// GET /api/v1/users/:id/presence
func (h *Handlers) GetUserPresence(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if util.HandleDBError(c, err, "user") {
		return
	}

	resp := gin.H{
		"user_id":   user.ID,
		"is_online": h.isOnline(user.ID),
	}
	if user.ShowPresence && user.LastSeenAt != nil {
		resp["last_seen_at"] = user.LastSeenAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// UpdatePreferences changes notification and presence settings for the
// current user. Presence visibility applies to live connections immediately.
// PUT /api/v1/users/me/preferences
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		EmailNotifications *bool `json:"email_notifications"`
		ShowPresence       *bool `json:"show_presence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.EmailNotifications == nil && req.ShowPresence == nil {
		util.RespondBadRequest(c, "no preferences to update")
		return
	}

	ctx := c.Request.Context()
	if err := h.users.UpdatePreferences(ctx, userID, req.EmailNotifications, req.ShowPresence); util.HandleDBError(c, err, "user") {
		return
	}
	if req.ShowPresence != nil && h.presence != nil {
		h.presence.SetVisible(ctx, userID, *req.ShowPresence)
	}

	user, err := h.users.GetUser(ctx, userID)
	if util.HandleDBError(c, err, "user") {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"email_notifications": user.EmailNotifications,
		"show_presence":       user.ShowPresence,
	})
}
