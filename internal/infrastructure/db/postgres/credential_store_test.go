package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// newTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func newTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Migrations are idempotent.
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	return NewCredentialStore(pool)
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}

func TestCredentialStore_Postgres_CreateAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	name := uniqueName("scout")

	u, err := s.Create(ctx, &domain.User{Username: name, Email: name + "@example.com", PasswordHash: "h", Role: domain.RoleScout})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, &domain.User{Username: name, PasswordHash: "h", Role: domain.RoleUser}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	got, err := s.FindByUsernameOrEmail(ctx, name+"@EXAMPLE.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("FindByUsernameOrEmail = %+v, %v", got, err)
	}
	if _, err := s.FindByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := s.FindByID(ctx, "nope"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for malformed id, got %v", err)
	}
}

func TestCredentialStore_Postgres_LoginKeysAreUniqueAcrossFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	name := uniqueName("victim")
	email := name + "@example.com"

	victim, err := s.Create(ctx, &domain.User{Username: name, Email: email, PasswordHash: "h", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, &domain.User{Username: email, Email: uniqueName("other") + "@example.com", PasswordHash: "h", Role: domain.RoleUser}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("username equal to another email: expected ErrUserExists, got %v", err)
	}
	other := uniqueName("other")
	if _, err := s.Create(ctx, &domain.User{Username: other, Email: name, PasswordHash: "h", Role: domain.RoleUser}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("email equal to another username: expected ErrUserExists, got %v", err)
	}
	// The rejected insert left no user row behind.
	if _, err := s.FindByUsernameOrEmail(ctx, other); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected rolled back user, got %v", err)
	}

	got, err := s.FindByUsernameOrEmail(ctx, email)
	if err != nil || got.ID != victim.ID {
		t.Fatalf("FindByUsernameOrEmail = %+v, %v", got, err)
	}
}

func TestCredentialStore_Postgres_ApplyLoginResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := s.Create(ctx, &domain.User{Username: uniqueName("alice"), PasswordHash: "h", Role: domain.RoleUser})

	until := time.Now().Add(15 * time.Minute)
	ok, err := s.ApplyLoginResult(ctx, u.ID, domain.LoginState{}, domain.LoginResult{Attempts: 5, LockoutUntil: &until})
	if err != nil || !ok {
		t.Fatalf("apply = %v, %v", ok, err)
	}
	ok, err = s.ApplyLoginResult(ctx, u.ID, domain.LoginState{}, domain.LoginResult{Attempts: 1})
	if err != nil || ok {
		t.Fatalf("stale apply must conflict, got %v, %v", ok, err)
	}

	got, _ := s.FindByID(ctx, u.ID)
	ok, err = s.ApplyLoginResult(ctx, u.ID, got.State(), domain.LoginResult{})
	if err != nil || !ok {
		t.Fatalf("apply with read-back state = %v, %v", ok, err)
	}
	if _, err := s.ApplyLoginResult(ctx, uuid.NewString(), domain.LoginState{}, domain.LoginResult{}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCredentialStore_Postgres_RefreshTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := s.Create(ctx, &domain.User{Username: uniqueName("bob"), PasswordHash: "h", Role: domain.RoleUser})

	for i := 0; i < 4; i++ {
		if err := s.AddRefreshToken(ctx, u.ID, fmt.Sprintf("t%d", i), 3); err != nil {
			t.Fatalf("AddRefreshToken: %v", err)
		}
	}
	got, _ := s.FindByID(ctx, u.ID)
	if len(got.RefreshTokens) != 3 || got.RefreshTokens[0] != "t1" {
		t.Fatalf("expected the 3 newest tokens, got %v", got.RefreshTokens)
	}

	ok, err := s.RotateRefreshToken(ctx, u.ID, "t2", "n")
	if err != nil || !ok {
		t.Fatalf("rotate = %v, %v", ok, err)
	}
	if ok, _ := s.RotateRefreshToken(ctx, u.ID, "t2", "n2"); ok {
		t.Fatalf("second rotate must fail")
	}
	if err := s.RemoveRefreshToken(ctx, u.ID, "t1"); err != nil {
		t.Fatalf("RemoveRefreshToken: %v", err)
	}

	got, _ = s.FindByID(ctx, u.ID)
	if len(got.RefreshTokens) != 2 || !got.HasRefreshToken("t3") || !got.HasRefreshToken("n") {
		t.Fatalf("unexpected tokens %v", got.RefreshTokens)
	}
}
