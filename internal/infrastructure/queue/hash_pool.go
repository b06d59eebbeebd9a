package queue

import (
	"context"
	"errors"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/scoutnetworking/scout-auth/internal/pkg/metrics"
)

const channelBuffer = 256

// ErrPoolStopped is returned for jobs submitted after the pool stopped.
var ErrPoolStopped = errors.New("hash pool stopped")

type job struct {
	ctx  context.Context
	fn   func()
	done chan struct{}
}

// HashPool runs CPU-heavy password hashing on a fixed set of workers so that
// a burst of logins cannot spawn unbounded bcrypt work.
type HashPool struct {
	jobs    chan job
	stopped chan struct{}
	workers int
	log     zerolog.Logger
}

// NewHashPool creates a HashPool with numWorkers workers.
// If numWorkers <= 0, runtime.NumCPU() is used.
func NewHashPool(numWorkers int, log zerolog.Logger) *HashPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &HashPool{
		jobs:    make(chan job, channelBuffer),
		stopped: make(chan struct{}),
		workers: numWorkers,
		log:     log,
	}
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (p *HashPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.runWorker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		close(p.stopped)
	}()
	p.log.Info().Int("workers", p.workers).Msg("hash pool started")
}

// Do queues fn and waits until a worker ran it or ctx is done. A job whose
// caller gave up while queued is skipped by the worker.
func (p *HashPool) Do(ctx context.Context, fn func()) error {
	select {
	case <-p.stopped:
		return ErrPoolStopped
	default:
	}

	j := job{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrPoolStopped
	case p.jobs <- j:
		metrics.HashQueueDepth.Inc()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrPoolStopped
	case <-j.done:
		return nil
	}
}

func (p *HashPool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			metrics.HashQueueDepth.Dec()
			if j.ctx.Err() == nil {
				j.fn()
			}
			close(j.done)
			p.log.Trace().Int("worker_id", id).Msg("hash job done")
		}
	}
}
