package ports

import (
	"context"
	"time"
)

// WindowStore keeps fixed-window request counters for the rate limiter.
type WindowStore interface {
	// Increment counts one hit for key and returns the new count together with
	// the instant the key's current window ends. A window starts on the first hit.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
	// Decrement takes back one hit, never going below zero.
	Decrement(ctx context.Context, key string) error
}
