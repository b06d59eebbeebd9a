package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
	"github.com/scoutnetworking/scout-auth/internal/pkg/metrics"
)

// MinBcryptCost is the lowest work factor accepted for stored digests.
const MinBcryptCost = 10

// maxPasswordBytes is the bcrypt input limit; longer inputs would be truncated.
const maxPasswordBytes = 72

// Runner executes fn, typically on a bounded worker pool.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// BcryptHasher implements ports.PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost   int
	runner Runner
	dummy  []byte
}

// NewBcryptHasher returns a hasher with the given cost. A nil runner runs work inline.
func NewBcryptHasher(cost int, runner Runner) (*BcryptHasher, error) {
	if cost < MinBcryptCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, MinBcryptCost, bcrypt.MaxCost)
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("dummy digest seed: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(seed)), cost)
	if err != nil {
		return nil, fmt.Errorf("dummy digest: %w", err)
	}

	return &BcryptHasher{cost: cost, runner: runner, dummy: dummy}, nil
}

func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" || len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must be 1 to %d bytes", domain.ErrInvalidInput, maxPasswordBytes)
	}

	var (
		digest []byte
		err    error
	)
	if runErr := h.run(ctx, "hash", func() {
		digest, err = bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	}); runErr != nil {
		return "", runErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrHashingFailure, err)
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(ctx context.Context, plaintext, digest string) (bool, error) {
	if len(plaintext) > maxPasswordBytes {
		return false, nil
	}

	var err error
	if runErr := h.run(ctx, "verify", func() {
		err = bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	}); runErr != nil {
		return false, runErr
	}

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", domain.ErrHashingFailure, err)
	}
}

func (h *BcryptHasher) VerifyDummy(ctx context.Context, plaintext string) error {
	return h.run(ctx, "dummy", func() {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
	})
}

func (h *BcryptHasher) run(ctx context.Context, op string, fn func()) error {
	start := time.Now()
	defer func() { metrics.HashDuration.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	if h.runner == nil {
		fn()
		return nil
	}
	if err := h.runner.Do(ctx, fn); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrHashingFailure, err)
	}
	return nil
}
