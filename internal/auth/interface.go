package auth

import (
	"context"

	"github.com/kinfolk/backend/internal/models"
)

// AuthServiceInterface defines the contract for authentication operations
type AuthServiceInterface interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)

	// Verify resolves a token to a user id without loading the user
	Verify(tokenString string) (string, error)
	ValidateToken(ctx context.Context, tokenString string) (*models.User, error)
}

// Ensure Service implements AuthServiceInterface
var _ AuthServiceInterface = (*Service)(nil)
