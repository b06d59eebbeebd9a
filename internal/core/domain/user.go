package domain

import (
	"slices"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleScout = "scout"
	RoleAdmin = "admin"
)

// DefaultMaxRefreshTokens caps the outstanding refresh tokens kept per user.
const DefaultMaxRefreshTokens = 10

// User models an authenticated actor together with its login security state.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`

	LoginAttempts   int        `json:"-"`
	LockoutUntil    *time.Time `json:"-"`
	LastLogin       *time.Time `json:"-"`
	LastFailedLogin *time.Time `json:"-"`
	RefreshTokens   []string   `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LoginState is the pair of fields a login result is conditioned on.
type LoginState struct {
	Attempts     int
	LockoutUntil *time.Time
}

// LoginResult holds the security fields written after a login attempt.
// Nil LastLogin / LastFailedLogin leave the stored value untouched.
type LoginResult struct {
	Attempts        int
	LockoutUntil    *time.Time
	LastLogin       *time.Time
	LastFailedLogin *time.Time
}

// State returns the compare-and-swap guard for the user's current security fields.
func (u *User) State() LoginState {
	return LoginState{Attempts: u.LoginAttempts, LockoutUntil: u.LockoutUntil}
}

// HasRefreshToken reports whether token is one of the user's outstanding refresh tokens.
func (u *User) HasRefreshToken(token string) bool {
	return token != "" && slices.Contains(u.RefreshTokens, token)
}

// LoginKeys returns the normalized identifiers the user can sign in with.
// No two users may share a key, whether it came from a username or an email.
func (u *User) LoginKeys() []string {
	keys := make([]string, 0, 2)
	for _, k := range []string{u.Username, u.Email} {
		if k = NormalizeLoginKey(k); k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// NormalizeLoginKey folds a submitted username or email to its lookup form.
func NormalizeLoginKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Matches reports whether the state equals other, comparing lockout instants rather than pointers.
func (s LoginState) Matches(other LoginState) bool {
	if s.Attempts != other.Attempts {
		return false
	}
	if s.LockoutUntil == nil || other.LockoutUntil == nil {
		return s.LockoutUntil == nil && other.LockoutUntil == nil
	}
	return s.LockoutUntil.Equal(*other.LockoutUntil)
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleScout, RoleAdmin:
		return true
	}
	return false
}
