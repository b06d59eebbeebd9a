package domain

import "time"

// LockoutPolicy decides account lockout from the attempt counter alone.
// It is pure: every method derives a new state and never touches storage.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// NewLockoutPolicy builds a policy from the configured threshold and lockout minutes.
func NewLockoutPolicy(maxAttempts, lockoutMinutes int) LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts: maxAttempts,
		Duration:    time.Duration(lockoutMinutes) * time.Minute,
	}
}

// IsLocked reports whether the user is inside an active lockout window.
func (p LockoutPolicy) IsLocked(u *User, now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

// Remaining returns how long the current lockout still lasts, or zero.
func (p LockoutPolicy) Remaining(u *User, now time.Time) time.Duration {
	if !p.IsLocked(u, now) {
		return 0
	}
	return u.LockoutUntil.Sub(now)
}

// OnFailure counts one more failed attempt. Reaching the threshold (re)starts
// the lockout window; below it the lockout field is carried over unchanged.
// An expired lock is not cleared here, only a successful login does that.
func (p LockoutPolicy) OnFailure(u *User, now time.Time) LoginResult {
	attempts := u.LoginAttempts + 1
	lockoutUntil := u.LockoutUntil
	if attempts >= p.MaxAttempts {
		until := now.Add(p.Duration)
		lockoutUntil = &until
	}
	failedAt := now
	return LoginResult{
		Attempts:        attempts,
		LockoutUntil:    lockoutUntil,
		LastFailedLogin: &failedAt,
	}
}

// OnSuccess clears the counter and any lockout.
func (p LockoutPolicy) OnSuccess(_ *User, now time.Time) LoginResult {
	loginAt := now
	return LoginResult{Attempts: 0, LastLogin: &loginAt}
}

// Reset is the administrative unlock: counter and lockout cleared, timestamps kept.
func (p LockoutPolicy) Reset() LoginResult {
	return LoginResult{}
}
