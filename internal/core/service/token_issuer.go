package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// TokenConfig carries the signing secrets and lifetimes of both token kinds.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// tokenClaims is the JWT payload of access and refresh tokens.
type tokenClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer using the wall clock.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, errors.New("token issuer: secrets must not be empty")
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, errors.New("token issuer: access and refresh secrets must differ")
	case cfg.AccessTTL <= 0:
		return nil, errors.New("token issuer: access ttl must be positive")
	case cfg.RefreshTTL <= cfg.AccessTTL:
		return nil, errors.New("token issuer: refresh ttl must exceed access ttl")
	}
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// WithClock replaces the time source used for minting and expiry checks.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// Mint issues a fresh access/refresh pair for userID.
func (t *TokenIssuer) Mint(userID string) (domain.TokenPair, error) {
	if userID == "" {
		return domain.TokenPair{}, fmt.Errorf("mint: %w: empty subject", domain.ErrInvalidInput)
	}
	now := t.now()

	access, err := t.sign(userID, domain.TokenTypeAccess, now, t.accessTTL, t.accessSecret)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := t.sign(userID, domain.TokenTypeRefresh, now, t.refreshTTL, t.refreshSecret)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.accessTTL / time.Second),
	}, nil
}

// VerifyAccess returns the subject of a valid access token.
func (t *TokenIssuer) VerifyAccess(token string) (string, error) {
	return t.parse(token, domain.TokenTypeAccess, t.accessSecret)
}

// ParseRefresh returns the subject of a structurally valid refresh token.
// Membership in the user's refresh set is checked by the caller.
func (t *TokenIssuer) ParseRefresh(token string) (string, error) {
	return t.parse(token, domain.TokenTypeRefresh, t.refreshSecret)
}

func (t *TokenIssuer) sign(sub, typ string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	claims := tokenClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (t *TokenIssuer) parse(token, typ string, secret []byte) (string, error) {
	if token == "" {
		return "", domain.ErrTokenInvalid
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", domain.ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	if claims.Type != typ || claims.Subject == "" {
		return "", domain.ErrTokenInvalid
	}
	return claims.Subject, nil
}
