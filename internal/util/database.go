package util

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/repository"
	"gorm.io/gorm"
)

// HandleDBError maps repository errors to HTTP responses.
// Returns true if the error was handled (and a response was sent).
func HandleDBError(c *gin.Context, err error, resourceName string) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrPostNotFound),
		errors.Is(err, repository.ErrCommentNotFound),
		errors.Is(err, repository.ErrFriendRequestNotFound),
		errors.Is(err, repository.ErrMessageNotFound):
		RespondNotFound(c, resourceName)
	case errors.Is(err, repository.ErrDuplicate):
		RespondConflict(c, resourceName)
	default:
		RespondInternalError(c, "failed to load "+resourceName)
	}
	return true
}
