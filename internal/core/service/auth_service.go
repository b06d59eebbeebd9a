package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
	"github.com/scoutnetworking/scout-auth/internal/core/ports"
	"github.com/scoutnetworking/scout-auth/internal/pkg/metrics"
)

const (
	// maxCASAttempts bounds how often a conflicting conditional update is re-evaluated.
	maxCASAttempts = 8
	persistTimeout = 5 * time.Second
)

// AuthService implements the login, refresh, logout, verify, register and unlock flows.
type AuthService struct {
	store      ports.CredentialStore
	hasher     ports.PasswordHasher
	tokens     *TokenIssuer
	limiter    *RateLimiter
	policy     domain.LockoutPolicy
	keepTokens int
	now        func() time.Time
	log        zerolog.Logger
}

func NewAuthService(
	store ports.CredentialStore,
	hasher ports.PasswordHasher,
	tokens *TokenIssuer,
	limiter *RateLimiter,
	policy domain.LockoutPolicy,
	keepTokens int,
	log zerolog.Logger,
) *AuthService {
	if keepTokens <= 0 {
		keepTokens = domain.DefaultMaxRefreshTokens
	}
	return &AuthService{
		store:      store,
		hasher:     hasher,
		tokens:     tokens,
		limiter:    limiter,
		policy:     policy,
		keepTokens: keepTokens,
		now:        time.Now,
		log:        log,
	}
}

// WithClock replaces the time source used for lockout decisions.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}
	if !domain.ValidRole(in.Role) || in.Role == domain.RoleAdmin {
		return nil, fmt.Errorf("%w: role must be %s or %s", domain.ErrInvalidInput, domain.RoleUser, domain.RoleScout)
	}
	// An email-shaped username is only accepted as the account's own email.
	if strings.Contains(in.Username, "@") && !strings.EqualFold(in.Username, in.Email) {
		return nil, fmt.Errorf("%w: username must not contain @", domain.ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	created, err := s.store.Create(ctx, &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, storeError("create user", err)
	}

	pctx, cancel := persistContext(ctx)
	defer cancel()
	pair, err := s.issue(pctx, created.ID, "register")
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", created.ID).Str("role", created.Role).Msg("user registered")
	return &ports.AuthResult{User: created, Tokens: pair}, nil
}

func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.AuthResult, error) {
	adm, err := s.limiter.Allow(ctx, in.ClientAddress, in.Username)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
		} else {
			metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	result, err := s.login(ctx, in)
	switch {
	case err == nil:
		metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
		s.limiter.Succeeded(context.WithoutCancel(ctx), adm)
	case errors.Is(err, domain.ErrInvalidCredentials):
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
	case errors.Is(err, domain.ErrAccountLocked):
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
	default:
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
	}
	return result, err
}

func (s *AuthService) login(ctx context.Context, in ports.LoginInput) (*ports.AuthResult, error) {
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	user, err := s.store.FindByUsernameOrEmail(ctx, in.Username)
	if errors.Is(err, domain.ErrUserNotFound) {
		if err := s.hasher.VerifyDummy(ctx, in.Password); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeError("find user", err)
	}

	if s.policy.IsLocked(user, s.now()) {
		return nil, &domain.LockedError{Remaining: s.policy.Remaining(user, s.now())}
	}

	ok, err := s.hasher.Verify(ctx, in.Password, user.PasswordHash)
	if err != nil {
		return nil, err
	}

	// The transition is decided; finish it even if the client goes away.
	pctx, cancel := persistContext(ctx)
	defer cancel()

	if !ok {
		if err := s.recordFailure(pctx, user); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidCredentials
	}

	user, err = s.recordSuccess(pctx, user)
	if err != nil {
		return nil, err
	}
	pair, err := s.issue(pctx, user.ID, "login")
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("login succeeded")
	return &ports.AuthResult{User: user, Tokens: pair}, nil
}

// recordFailure counts one failed attempt. On a conflict the failure is
// re-applied to the fresh state so that no concurrent failure is lost.
func (s *AuthService) recordFailure(ctx context.Context, user *domain.User) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if attempt > 0 {
			metrics.LoginConflictsTotal.Inc()
			fresh, err := s.store.FindByID(ctx, user.ID)
			if err != nil {
				return storeError("reload user", err)
			}
			user = fresh
		}

		result := s.policy.OnFailure(user, s.now())
		applied, err := s.store.ApplyLoginResult(ctx, user.ID, user.State(), result)
		if err != nil {
			return storeError("record failed login", err)
		}
		if applied {
			if result.Attempts >= s.policy.MaxAttempts {
				metrics.AccountLockoutsTotal.Inc()
				s.log.Warn().Str("user_id", user.ID).Int("attempts", result.Attempts).
					Time("lockout_until", *result.LockoutUntil).Msg("account locked")
			}
			return nil
		}
	}
	return fmt.Errorf("%w: record failed login: too many concurrent updates", domain.ErrStoreUnavailable)
}

// recordSuccess clears the lockout state. If a concurrent failure locked the
// account in the meantime, the login is refused.
func (s *AuthService) recordSuccess(ctx context.Context, user *domain.User) (*domain.User, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if attempt > 0 {
			metrics.LoginConflictsTotal.Inc()
			fresh, err := s.store.FindByID(ctx, user.ID)
			if err != nil {
				return nil, storeError("reload user", err)
			}
			user = fresh
			if now := s.now(); s.policy.IsLocked(user, now) {
				return nil, &domain.LockedError{Remaining: s.policy.Remaining(user, now)}
			}
		}

		result := s.policy.OnSuccess(user, s.now())
		applied, err := s.store.ApplyLoginResult(ctx, user.ID, user.State(), result)
		if err != nil {
			return nil, storeError("record login", err)
		}
		if applied {
			user.LoginAttempts = result.Attempts
			user.LockoutUntil = nil
			user.LastLogin = result.LastLogin
			return user, nil
		}
	}
	return nil, fmt.Errorf("%w: record login: too many concurrent updates", domain.ErrStoreUnavailable)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	userID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return domain.TokenPair{}, s.rejectToken(domain.TokenTypeRefresh, err)
	}

	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.TokenPair{}, s.rejectToken(domain.TokenTypeRefresh, domain.ErrTokenInvalid)
	}
	if err != nil {
		return domain.TokenPair{}, storeError("find user", err)
	}
	if !user.HasRefreshToken(refreshToken) {
		return domain.TokenPair{}, s.rejectToken(domain.TokenTypeRefresh, domain.ErrTokenRevoked)
	}
	if now := s.now(); s.policy.IsLocked(user, now) {
		return domain.TokenPair{}, &domain.LockedError{Remaining: s.policy.Remaining(user, now)}
	}

	pair, err := s.tokens.Mint(user.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pctx, cancel := persistContext(ctx)
	defer cancel()
	rotated, err := s.store.RotateRefreshToken(pctx, user.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return domain.TokenPair{}, storeError("rotate refresh token", err)
	}
	if !rotated {
		return domain.TokenPair{}, s.rejectToken(domain.TokenTypeRefresh, domain.ErrTokenRevoked)
	}

	metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()
	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	if userID == "" || refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", domain.ErrInvalidInput)
	}
	pctx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.store.RemoveRefreshToken(pctx, userID, refreshToken); err != nil {
		return storeError("remove refresh token", err)
	}
	s.log.Info().Str("user_id", userID).Msg("logged out")
	return nil
}

func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	userID, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, s.rejectToken(domain.TokenTypeAccess, err)
	}

	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, s.rejectToken(domain.TokenTypeAccess, domain.ErrTokenInvalid)
	}
	if err != nil {
		return nil, storeError("find user", err)
	}
	if now := s.now(); s.policy.IsLocked(user, now) {
		return nil, &domain.LockedError{Remaining: s.policy.Remaining(user, now)}
	}
	return user, nil
}

func (s *AuthService) Unlock(ctx context.Context, userID string) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		user, err := s.store.FindByID(ctx, userID)
		if err != nil {
			return storeError("find user", err)
		}
		applied, err := s.store.ApplyLoginResult(ctx, user.ID, user.State(), s.policy.Reset())
		if err != nil {
			return storeError("unlock user", err)
		}
		if applied {
			s.log.Info().Str("user_id", userID).Msg("account unlocked")
			return nil
		}
	}
	return fmt.Errorf("%w: unlock: too many concurrent updates", domain.ErrStoreUnavailable)
}

// issue mints a pair and records its refresh token in the user's bounded set.
func (s *AuthService) issue(ctx context.Context, userID, flow string) (domain.TokenPair, error) {
	pair, err := s.tokens.Mint(userID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.store.AddRefreshToken(ctx, userID, pair.RefreshToken, s.keepTokens); err != nil {
		return domain.TokenPair{}, storeError("store refresh token", err)
	}
	metrics.TokensIssuedTotal.WithLabelValues(flow).Inc()
	return pair, nil
}

func (s *AuthService) rejectToken(typ string, err error) error {
	reason := domain.TokenErrorReason(err)
	metrics.TokenRejectionsTotal.WithLabelValues(typ, reason).Inc()
	s.log.Debug().Str("type", typ).Str("reason", reason).Msg("token rejected")
	return err
}

func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// storeError keeps the domain lookup errors and classifies everything else as unavailable.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrStoreUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
	}
}
