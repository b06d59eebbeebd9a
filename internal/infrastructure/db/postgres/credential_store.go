package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

const uniqueViolation = "23505"

const userColumns = `id::text, username, COALESCE(email, ''), password_hash, role, login_attempts,
	lockout_until, last_login, last_failed_login, refresh_tokens, created_at, updated_at`

// CredentialStore implements ports.CredentialStore on a users table.
// Conditional updates are single UPDATE statements guarded in their WHERE clause.
type CredentialStore struct {
	pool *pgxpool.Pool
}

func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

func (s *CredentialStore) FindByUsernameOrEmail(ctx context.Context, key string) (*domain.User, error) {
	key = domain.NormalizeLoginKey(key)
	if key == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users
		WHERE id = (SELECT user_id FROM user_login_keys WHERE login_key = $1)`, key)
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *CredentialStore) queryUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.LoginAttempts,
		&u.LockoutUntil, &u.LastLogin, &u.LastFailedLogin, &u.RefreshTokens, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (s *CredentialStore) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate uuid v7: %w", err)
	}
	now := time.Now().UTC()

	var email *string
	if user.Email != "" {
		email = &user.Email
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, id.String(), user.Username, email, user.PasswordHash, user.Role, now); err != nil {
		return nil, createError("insert user", err)
	}
	// Login keys share one primary key, so a username equal to another user's
	// email fails here like a duplicate username does.
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_login_keys (login_key, user_id)
		SELECT k, $2::uuid FROM unnest($1::text[]) AS k
	`, user.LoginKeys(), id.String()); err != nil {
		return nil, createError("insert login keys", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create user: %w", err)
	}

	return &domain.User{
		ID:            id.String(),
		Username:      user.Username,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		Role:          user.Role,
		RefreshTokens: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func createError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrUserExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *CredentialStore) ApplyLoginResult(ctx context.Context, id string, expected domain.LoginState, result domain.LoginResult) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			login_attempts    = $4,
			lockout_until     = $5,
			last_login        = COALESCE($6, last_login),
			last_failed_login = COALESCE($7, last_failed_login),
			updated_at        = NOW()
		WHERE id = $1
		  AND login_attempts = $2
		  AND lockout_until IS NOT DISTINCT FROM $3
	`, id, expected.Attempts, expected.LockoutUntil,
		result.Attempts, result.LockoutUntil, result.LastLogin, result.LastFailedLogin)
	if err != nil {
		return false, fmt.Errorf("apply login result: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.ensureExists(ctx, id)
}

func (s *CredentialStore) AddRefreshToken(ctx context.Context, id, token string, keep int) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrUserNotFound
	}
	if keep <= 0 {
		keep = domain.DefaultMaxRefreshTokens
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// Keep the newest $3 entries of the appended array.
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			refresh_tokens = (array_append(refresh_tokens, $2::text))[GREATEST(cardinality(refresh_tokens) + 2 - $3::int, 1):],
			updated_at     = NOW()
		WHERE id = $1
	`, id, token, keep)
	if err != nil {
		return fmt.Errorf("add refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *CredentialStore) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			refresh_tokens = array_append(array_remove(refresh_tokens, $2::text), $3::text),
			updated_at     = NOW()
		WHERE id = $1 AND $2::text = ANY(refresh_tokens)
	`, id, oldToken, newToken)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.ensureExists(ctx, id)
}

func (s *CredentialStore) RemoveRefreshToken(ctx context.Context, id, token string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `
		UPDATE users SET refresh_tokens = array_remove(refresh_tokens, $2::text)
		WHERE id = $1
	`, id, token); err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func (s *CredentialStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *CredentialStore) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}
