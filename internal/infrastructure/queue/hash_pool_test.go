package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHashPool_RunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewHashPool(2, zerolog.Nop())
	p.Start(ctx)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Do(ctx, func() { ran.Add(1) }); err != nil {
				t.Errorf("Do returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := ran.Load(); got != 20 {
		t.Fatalf("expected 20 jobs to run, got %d", got)
	}
}

func TestHashPool_CallerContextCancelled(t *testing.T) {
	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()

	p := NewHashPool(1, zerolog.Nop())
	p.Start(poolCtx)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		_ = p.Do(poolCtx, func() {
			close(started)
			<-release
		})
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("blocking job never started")
	}

	// The only worker is busy, so this job cannot run before the deadline.
	var ran atomic.Bool
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Do(ctx, func() { ran.Store(true) }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if ran.Load() {
		t.Fatalf("job ran although its caller gave up")
	}
}

func TestHashPool_Stopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewHashPool(1, zerolog.Nop())
	p.Start(ctx)

	select {
	case <-p.stopped:
	case <-time.After(time.Second):
		t.Fatalf("pool did not stop")
	}

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		if err := p.Do(context.Background(), func() { ran.Add(1) }); !errors.Is(err, ErrPoolStopped) {
			t.Fatalf("attempt %d: expected ErrPoolStopped, got %v", i+1, err)
		}
	}
	if got := ran.Load(); got != 0 {
		t.Fatalf("expected no job to run after stop, %d did", got)
	}
}
