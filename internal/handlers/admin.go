package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/kinfolk/backend/internal/errors"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/util"
	"github.com/kinfolk/backend/internal/websocket"
	"go.uber.org/zap"
)

// AdminNotify pushes a system event to live connections. Nothing is
// persisted; users who are offline never see it. Without user_ids the
// event goes to everyone.
// POST /api/v1/admin/notify
func (h *Handlers) AdminNotify(c *gin.Context) {
	adminID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if h.wsHandler == nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("real-time service"))
		return
	}

	var req struct {
		Message string                 `json:"message" binding:"required,max=500"`
		Event   string                 `json:"event"`
		UserIDs []string               `json:"user_ids"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.Event == "" {
		req.Event = "announcement"
	}

	msg := websocket.NewMessage(websocket.MessageTypeSystem, websocket.SystemPayload{
		Event:   req.Event,
		Message: req.Message,
		Data:    req.Data,
	})

	hub := h.wsHandler.GetHub()
	var delivered int
	if len(req.UserIDs) == 0 {
		delivered = hub.Broadcast(msg)
	} else {
		delivered = hub.PublishMany(req.UserIDs, msg)
	}

	logger.Log.Info("Admin system event sent",
		logger.WithUserID(adminID),
		zap.String("event", req.Event),
		zap.Int("targets", len(req.UserIDs)),
		zap.Int("delivered", delivered))

	c.JSON(http.StatusOK, gin.H{
		"event":     req.Event,
		"delivered": delivered,
	})
}
