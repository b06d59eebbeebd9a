package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func newTestIssuer(t *testing.T, clock *fakeClock) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(testTokenConfig())
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer.WithClock(clock.Now)
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TokenConfig)
	}{
		{"empty access secret", func(c *TokenConfig) { c.AccessSecret = "" }},
		{"empty refresh secret", func(c *TokenConfig) { c.RefreshSecret = "" }},
		{"same secrets", func(c *TokenConfig) { c.RefreshSecret = c.AccessSecret }},
		{"zero access ttl", func(c *TokenConfig) { c.AccessTTL = 0 }},
		{"refresh not longer", func(c *TokenConfig) { c.RefreshTTL = c.AccessTTL }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTokenConfig()
			tt.mutate(&cfg)
			if _, err := NewTokenIssuer(cfg); err == nil {
				t.Fatalf("expected construction error")
			}
		})
	}
}

func TestTokenIssuer_MintAndVerify(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestIssuer(t, clock)

	pair, err := issuer.Mint("user-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if pair.ExpiresIn != 900 {
		t.Fatalf("expected expiresIn 900, got %d", pair.ExpiresIn)
	}

	sub, err := issuer.VerifyAccess(pair.AccessToken)
	if err != nil || sub != "user-1" {
		t.Fatalf("VerifyAccess = %q, %v", sub, err)
	}
	sub, err = issuer.ParseRefresh(pair.RefreshToken)
	if err != nil || sub != "user-1" {
		t.Fatalf("ParseRefresh = %q, %v", sub, err)
	}
}

func TestTokenIssuer_TokensAreUnique(t *testing.T) {
	issuer := newTestIssuer(t, newFakeClock())

	a, _ := issuer.Mint("user-1")
	b, _ := issuer.Mint("user-1")
	if a.AccessToken == b.AccessToken || a.RefreshToken == b.RefreshToken {
		t.Fatalf("tokens minted in the same instant must differ")
	}
}

func TestTokenIssuer_AccessExpired(t *testing.T) {
	clock := newFakeClock()
	cfg := testTokenConfig()
	cfg.AccessTTL = time.Second
	issuer, err := NewTokenIssuer(cfg)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	issuer.WithClock(clock.Now)

	pair, _ := issuer.Mint("user-1")
	clock.Advance(2 * time.Second)

	if _, err := issuer.VerifyAccess(pair.AccessToken); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_WrongTypeOrSecret(t *testing.T) {
	issuer := newTestIssuer(t, newFakeClock())
	pair, _ := issuer.Mint("user-1")

	if _, err := issuer.VerifyAccess(pair.RefreshToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("refresh token used as access: expected ErrTokenInvalid, got %v", err)
	}
	if _, err := issuer.ParseRefresh(pair.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("access token used as refresh: expected ErrTokenInvalid, got %v", err)
	}
	if _, err := issuer.VerifyAccess(""); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("empty token: expected ErrTokenInvalid, got %v", err)
	}
	if _, err := issuer.VerifyAccess("not.a.jwt"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("garbage token: expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenIssuer_TamperedSignature(t *testing.T) {
	issuer := newTestIssuer(t, newFakeClock())
	pair, _ := issuer.Mint("user-1")

	parts := strings.Split(pair.AccessToken, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := issuer.VerifyAccess(strings.Join(parts, ".")); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestIssuer(t, clock)

	claims := tokenClaims{
		Type: domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	for _, method := range []jwt.SigningMethod{jwt.SigningMethodHS384, jwt.SigningMethodHS512} {
		signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte("access-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := issuer.VerifyAccess(signed); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", method.Alg(), err)
		}
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := issuer.VerifyAccess(unsigned); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("alg none: expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenIssuer_EmptySubject(t *testing.T) {
	issuer := newTestIssuer(t, newFakeClock())
	if _, err := issuer.Mint(""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
