package ports

import (
	"context"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// LoginInput is the DTO passed from the transport layer to AuthService.Login.
type LoginInput struct {
	Username      string
	Password      string
	ClientAddress string
}

// RegisterInput is the DTO for self-service registration.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// AuthResult is returned by flows that authenticate a user and issue tokens.
type AuthResult struct {
	User   *domain.User
	Tokens domain.TokenPair
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, in LoginInput) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	// Authenticate resolves an access token to a live, unlocked user.
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
	Unlock(ctx context.Context, userID string) error
}
