// Package worker schedules queued review jobs onto a bounded pool. Jobs are
// dispatched in submission order and at most one execution per job id is in
// flight at any time.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned by Enqueue when the backlog is at capacity. The
// caller decides whether to surface backpressure or retry.
var ErrQueueFull = errors.New("worker: queue is full")

// Runner executes one job to completion. Every outcome is recorded by the
// runner itself; the scheduler only cares about when the call returns.
type Runner interface {
	Run(ctx context.Context, jobID string)
}

// Scheduler fans queued job ids out to a fixed number of workers.
type Scheduler struct {
	runner  Runner
	queue   chan string
	workers int

	mu     sync.Mutex
	active map[string]bool
}

// NewScheduler builds a scheduler with the given pool size and backlog
// capacity. Non-positive values fall back to sane minimums.
func NewScheduler(runner Runner, workers, queueSize int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Scheduler{
		runner:  runner,
		queue:   make(chan string, queueSize),
		workers: workers,
		active:  make(map[string]bool),
	}
}

// Enqueue adds a job id to the backlog without blocking.
func (s *Scheduler) Enqueue(jobID string) error {
	select {
	case s.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// in-flight job has returned. Jobs already picked up keep running; the
// runner observes the cancellation through its own context handling.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-s.queue:
					s.dispatch(ctx, id)
				}
			}
		})
	}
	return g.Wait()
}

func (s *Scheduler) dispatch(ctx context.Context, jobID string) {
	if !s.tryAcquire(jobID) {
		// A duplicate submission raced an in-flight execution. The run
		// already underway owns the job; drop this dispatch.
		log.Printf("[worker] job %s already executing, dropping duplicate dispatch", jobID)
		return
	}
	defer s.release(jobID)
	s.runner.Run(ctx, jobID)
}

func (s *Scheduler) tryAcquire(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[jobID] {
		return false
	}
	s.active[jobID] = true
	return true
}

func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, jobID)
}
