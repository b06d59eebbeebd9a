// Package memory provides process-local adapters for development and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// CredentialStore implements ports.CredentialStore over a mutex-guarded map.
// Reads return copies, so callers never share state with the store.
type CredentialStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	now   func() time.Time
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{users: make(map[string]*domain.User), now: time.Now}
}

func (s *CredentialStore) FindByUsernameOrEmail(_ context.Context, key string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key = domain.NormalizeLoginKey(key)
	if key == "" {
		return nil, domain.ErrUserNotFound
	}
	for _, u := range s.users {
		if slices.Contains(u.LoginKeys(), key) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *CredentialStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *CredentialStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := user.LoginKeys()
	for _, u := range s.users {
		for _, k := range u.LoginKeys() {
			if slices.Contains(keys, k) {
				return nil, domain.ErrUserExists
			}
		}
	}

	created := cloneUser(user)
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now().UTC()
	}
	created.UpdatedAt = created.CreatedAt
	s.users[created.ID] = created
	return cloneUser(created), nil
}

func (s *CredentialStore) ApplyLoginResult(_ context.Context, id string, expected domain.LoginState, result domain.LoginResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	if !u.State().Matches(expected) {
		return false, nil
	}

	u.LoginAttempts = result.Attempts
	u.LockoutUntil = cloneTime(result.LockoutUntil)
	if result.LastLogin != nil {
		u.LastLogin = cloneTime(result.LastLogin)
	}
	if result.LastFailedLogin != nil {
		u.LastFailedLogin = cloneTime(result.LastFailedLogin)
	}
	u.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *CredentialStore) AddRefreshToken(_ context.Context, id, token string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RefreshTokens = append(u.RefreshTokens, token)
	if keep > 0 && len(u.RefreshTokens) > keep {
		u.RefreshTokens = slices.Clone(u.RefreshTokens[len(u.RefreshTokens)-keep:])
	}
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *CredentialStore) RotateRefreshToken(_ context.Context, id, oldToken, newToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	i := slices.Index(u.RefreshTokens, oldToken)
	if i < 0 {
		return false, nil
	}
	u.RefreshTokens = append(slices.Delete(u.RefreshTokens, i, i+1), newToken)
	u.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *CredentialStore) RemoveRefreshToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.RefreshTokens = slices.DeleteFunc(u.RefreshTokens, func(t string) bool { return t == token })
	return nil
}

func (s *CredentialStore) Ping(context.Context) error { return nil }

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	c.LockoutUntil = cloneTime(u.LockoutUntil)
	c.LastLogin = cloneTime(u.LastLogin)
	c.LastFailedLogin = cloneTime(u.LastFailedLogin)
	c.RefreshTokens = slices.Clone(u.RefreshTokens)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
