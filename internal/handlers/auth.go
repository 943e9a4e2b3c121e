package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/auth"
	apierrors "github.com/kinfolk/backend/internal/errors"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/util"
	"go.uber.org/zap"
)

// Register creates an account and returns a token
// POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		util.RespondWithAPIError(c, apierrors.AlreadyExists("user"))
		return
	case errors.Is(err, auth.ErrUsernameExists):
		util.RespondWithAPIError(c, apierrors.AlreadyExists("username"))
		return
	case err != nil:
		logger.Log.Error("Registration failed", zap.Error(err))
		util.RespondInternalError(c, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login exchanges email and password for a token
// POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		util.RespondUnauthorized(c, "invalid email or password")
		return
	}
	if err != nil {
		logger.Log.Error("Login failed", zap.Error(err))
		util.RespondInternalError(c, "login failed")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user
// GET /api/v1/auth/me
func (h *Handlers) Me(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
