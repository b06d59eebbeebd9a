package memory

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestWindowStore_FixedWindow(t *testing.T) {
	s := NewWindowStore(0)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		count, resetAt, err := s.Increment(ctx, "k", time.Minute, start.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
		if !resetAt.Equal(start.Add(time.Second + time.Minute)) {
			t.Fatalf("window must be anchored at the first hit, got %v", resetAt)
		}
	}

	count, _, _ := s.Increment(ctx, "k", time.Minute, start.Add(2*time.Minute))
	if count != 1 {
		t.Fatalf("expected a new window, got count %d", count)
	}
}

func TestWindowStore_DecrementFloorsAtZero(t *testing.T) {
	s := NewWindowStore(0)
	ctx := context.Background()
	now := time.Now()

	_, _, _ = s.Increment(ctx, "k", time.Minute, now)
	_ = s.Decrement(ctx, "k")
	_ = s.Decrement(ctx, "k")
	_ = s.Decrement(ctx, "unknown")

	count, _, _ := s.Increment(ctx, "k", time.Minute, now)
	if count != 1 {
		t.Fatalf("expected count 1 after floor, got %d", count)
	}
}

func TestWindowStore_PrunesExpired(t *testing.T) {
	s := NewWindowStore(5)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		_, _, _ = s.Increment(ctx, fmt.Sprintf("old-%d", i), time.Second, now)
	}
	_, _, _ = s.Increment(ctx, "fresh", time.Second, now.Add(time.Hour))

	if got := s.Len(); got != 1 {
		t.Fatalf("expected expired windows pruned, %d left", got)
	}
}

func TestWindowStore_BoundedUnderLiveKeys(t *testing.T) {
	s := NewWindowStore(20)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 500; i++ {
		_, _, _ = s.Increment(ctx, fmt.Sprintf("id:user-%d", i), time.Duration(i+1)*time.Minute, now)
		if got := s.Len(); got > 20 {
			t.Fatalf("after %d keys the store holds %d windows, cap is 20", i+1, got)
		}
	}

	// The latest windows expire last and survive eviction.
	count, _, _ := s.Increment(ctx, "id:user-499", 500*time.Minute, now)
	if count != 2 {
		t.Fatalf("expected the newest window to be kept, count %d", count)
	}
}

func TestWindowStore_DecrementToZeroDropsWindow(t *testing.T) {
	s := NewWindowStore(0)
	ctx := context.Background()

	_, _, _ = s.Increment(ctx, "k", time.Minute, time.Now())
	_ = s.Decrement(ctx, "k")
	if got := s.Len(); got != 0 {
		t.Fatalf("expected empty store, %d windows left", got)
	}
}
