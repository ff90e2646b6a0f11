package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWorkerPool_TrySubmitRespectsCapacity(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	started := make(chan struct{})

	ok := pool.TrySubmit(func() {
		close(started)
		<-release
	})
	if !ok {
		t.Fatal("expected first submit to succeed")
	}
	<-started

	if pool.TrySubmit(func() {}) {
		t.Error("expected second submit to be rejected while the only slot is held")
	}

	close(release)
}

func TestWorkerPool_SlotFreedAfterCompletion(t *testing.T) {
	pool := NewWorkerPool(1)
	var wg sync.WaitGroup
	wg.Add(1)
	pool.TrySubmit(func() { wg.Done() })
	wg.Wait()

	// Give the goroutine's deferred Release a moment to run.
	deadline := time.Now().Add(time.Second)
	for !pool.TrySubmit(func() {}) {
		if time.Now().After(deadline) {
			t.Fatal("slot was never released")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorkerPool_SubmitBlocksUntilSlotFree(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	pool.TrySubmit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, func() {})
	if err == nil {
		t.Error("expected Submit to time out while the only slot is held")
	}

	close(release)
}
