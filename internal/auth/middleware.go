package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/errors"
	"github.com/kinfolk/backend/internal/util"
)

// Middleware requires a valid bearer token and stores the user under the
// "user" and "user_id" context keys
func Middleware(svc AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromHeader(c.GetHeader("Authorization"))
		if token == "" {
			util.RespondWithAPIError(c, errors.Unauthorized("no token provided"))
			c.Abort()
			return
		}

		user, err := svc.ValidateToken(c.Request.Context(), token)
		if err != nil {
			util.RespondWithAPIError(c, errors.Unauthorized("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}
