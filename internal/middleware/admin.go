package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/errors"
	"github.com/kinfolk/backend/internal/util"
)

// RequireAdmin ensures the authenticated user is an admin. It must run after
// the auth middleware, which loads the user into the context.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := util.GetUserFromContext(c)
		if !ok {
			c.Abort()
			return
		}

		if !user.IsAdmin {
			util.RespondWithAPIError(c, errors.Forbidden("admin access required"))
			c.Abort()
			return
		}

		c.Next()
	}
}
