package ports

import (
	"context"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// CredentialStore persists users and their login security state.
// Every mutating method is a single atomic update on the backing store.
type CredentialStore interface {
	// FindByUsernameOrEmail resolves a login key. Returns domain.ErrUserNotFound on miss.
	FindByUsernameOrEmail(ctx context.Context, key string) (*domain.User, error)
	// FindByID returns domain.ErrUserNotFound when no user has the id.
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Create inserts a new user. Returns domain.ErrUserExists on a username or email clash.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	// ApplyLoginResult writes result only if the stored attempts/lockout still
	// equal expected. It reports false, without error, when the guard failed.
	ApplyLoginResult(ctx context.Context, id string, expected domain.LoginState, result domain.LoginResult) (bool, error)

	// AddRefreshToken appends token, evicting the oldest entries beyond keep.
	AddRefreshToken(ctx context.Context, id, token string, keep int) error
	// RotateRefreshToken replaces oldToken with newToken if oldToken is still
	// present. It reports false when oldToken was already gone.
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error)
	// RemoveRefreshToken is idempotent: removing an absent token is not an error.
	RemoveRefreshToken(ctx context.Context, id, token string) error

	Ping(ctx context.Context) error
}
