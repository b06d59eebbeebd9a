package ports

import "context"

// PasswordHasher is a one-way adaptive hash with constant-time verification.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	// Verify reports a mismatch as (false, nil); other failures are errors.
	Verify(ctx context.Context, plaintext, digest string) (bool, error)
	// VerifyDummy performs a verification of equal cost against a throwaway digest.
	VerifyDummy(ctx context.Context, plaintext string) error
}
