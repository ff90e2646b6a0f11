package scheduler

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds the number of concurrent job executions: a pool of
// slots with non-blocking (TrySubmit) and blocking (Submit) submission,
// built on golang.org/x/sync/semaphore.
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewWorkerPool creates a pool with the given number of slots.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 10
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// TrySubmit attempts to acquire a slot without blocking. If a slot is free
// it runs fn in a new goroutine and returns true; otherwise it returns false
// immediately so the caller can apply misfire/backpressure handling.
func (p *WorkerPool) TrySubmit(fn func()) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return true
}

// Submit blocks until a slot is available (or ctx is cancelled) and then
// runs fn in a new goroutine.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}
