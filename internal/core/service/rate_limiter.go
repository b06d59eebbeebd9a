package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
	"github.com/scoutnetworking/scout-auth/internal/core/ports"
	"github.com/scoutnetworking/scout-auth/internal/pkg/metrics"
)

const (
	scopeAddr = "addr"
	scopeID   = "id"
)

// RateLimitConfig bounds login attempts per bucket and window.
type RateLimitConfig struct {
	Window         time.Duration
	Max            int
	SkipSuccessful bool
}

// Admission records the buckets an admitted attempt was counted in.
type Admission struct {
	keys []string
}

// RateLimiter is a fixed-window limiter over two buckets per login attempt:
// one keyed by client address and one keyed by the claimed identity.
type RateLimiter struct {
	store ports.WindowStore
	cfg   RateLimitConfig
	now   func() time.Time
	log   zerolog.Logger
}

func NewRateLimiter(store ports.WindowStore, cfg RateLimitConfig, log zerolog.Logger) (*RateLimiter, error) {
	if cfg.Window <= 0 || cfg.Max <= 0 {
		return nil, fmt.Errorf("rate limiter: window and max must be positive")
	}
	return &RateLimiter{store: store, cfg: cfg, now: time.Now, log: log}, nil
}

// WithClock replaces the time source used for window arithmetic.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Allow counts the attempt in every bucket and admits it only if each bucket
// is within the limit. A store failure rejects the attempt.
func (l *RateLimiter) Allow(ctx context.Context, clientAddress, identity string) (*Admission, error) {
	now := l.now()
	adm := &Admission{}
	var retryAfter time.Duration
	var fullScope string

	for _, b := range buckets(clientAddress, identity) {
		count, resetAt, err := l.store.Increment(ctx, b.key, l.cfg.Window, now)
		if err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrStoreUnavailable, err)
		}
		adm.keys = append(adm.keys, b.key)

		if count > l.cfg.Max {
			if wait := resetAt.Sub(now); wait > retryAfter || fullScope == "" {
				retryAfter = wait
			}
			if fullScope == "" {
				fullScope = b.scope
			}
		}
	}

	if fullScope == "" {
		return adm, nil
	}

	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	metrics.RateLimitedTotal.WithLabelValues(fullScope).Inc()
	l.log.Warn().Str("scope", fullScope).Dur("retry_after", retryAfter).Msg("login rate limit exceeded")
	return nil, &domain.RateLimitedError{RetryAfter: retryAfter}
}

// Succeeded takes a successful attempt back out of its buckets when
// successful logins are not counted.
func (l *RateLimiter) Succeeded(ctx context.Context, adm *Admission) {
	if !l.cfg.SkipSuccessful || adm == nil {
		return
	}
	for _, key := range adm.keys {
		if err := l.store.Decrement(ctx, key); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("rate limiter decrement failed")
		}
	}
}

type bucket struct {
	scope string
	key   string
}

func buckets(clientAddress, identity string) []bucket {
	out := make([]bucket, 0, 2)
	if clientAddress != "" {
		out = append(out, bucket{scope: scopeAddr, key: scopeAddr + ":" + clientAddress})
	}
	if id := strings.ToLower(strings.TrimSpace(identity)); id != "" {
		out = append(out, bucket{scope: scopeID, key: scopeID + ":" + id})
	}
	return out
}
