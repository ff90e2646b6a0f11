// Package scheduler turns the set of enabled jobs into timely invocations
// of the executor: a heap-based sleep-until-next-fire loop, rather than a
// fixed-interval poll, so fire times aren't quantized to a tick boundary.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/executor"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
	"github.com/nextlevelbuilder/jobrunner/internal/trigger"
)

// DefaultMisfireGrace is used when the environment doesn't override it.
const DefaultMisfireGrace = 30 * time.Second

// Loop is the fire-time driver. It implements executor.Rescheduler so the
// executor can hand retries back to it.
type Loop struct {
	Jobs         jobstore.JobStore
	Exec         *executor.Executor
	Pool         *WorkerPool
	MisfireGrace time.Duration

	mu        sync.Mutex
	queue     fireQueue
	byJob     map[string]*fireEntry
	mutations chan MutationEvent
	wake      chan struct{}
	retrySeq  int
}

// New constructs a Loop. Call Run in its own goroutine.
func New(jobs jobstore.JobStore, exec *executor.Executor, pool *WorkerPool, misfireGrace time.Duration) *Loop {
	if misfireGrace <= 0 {
		misfireGrace = DefaultMisfireGrace
	}
	return &Loop{
		Jobs:         jobs,
		Exec:         exec,
		Pool:         pool,
		MisfireGrace: misfireGrace,
		byJob:        make(map[string]*fireEntry),
		mutations:    make(chan MutationEvent, 1),
		wake:         make(chan struct{}, 1),
	}
}

// Run scans the job store for enabled jobs, seeds the queue, then drives
// fires until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.seed()

	for {
		l.mu.Lock()
		var sleep time.Duration
		var due []*fireEntry
		now := time.Now()

		for l.queue.Len() > 0 && l.queue[0].next.Before(now.Add(time.Millisecond)) {
			e := heap.Pop(&l.queue).(*fireEntry)
			delete(l.byJob, e.key)
			due = append(due, e)
		}

		if l.queue.Len() > 0 {
			sleep = l.queue[0].next.Sub(now)
			if sleep < 0 {
				sleep = 0
			}
		} else {
			sleep = time.Hour
		}
		l.mu.Unlock()

		for _, e := range due {
			l.fire(ctx, e, now)
		}
		if len(due) > 0 {
			continue // re-check immediately in case more became due
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case ev := <-l.mutations:
			timer.Stop()
			l.handleMutation(ev)
		case <-l.wake:
			timer.Stop()
		}
	}
}

func (l *Loop) seed() {
	jobs, err := l.Jobs.ListJobs(jobstore.JobFilter{EnabledOnly: true})
	if err != nil {
		slog.Error("scheduler seed: list jobs failed", "error", err)
		return
	}
	for _, job := range jobs {
		l.rebuild(job.ID)
	}
}

// rebuild recomputes and (re)inserts the fire entry for jobID. The next fire
// is always computed from now, not the prior scheduled instant, so drift or
// an oversleep doesn't compound.
func (l *Loop) rebuild(jobID string) {
	job, cfg, _, err := l.Jobs.GetJob(jobID)
	if err != nil || job == nil || !job.Enabled || cfg.Schedule == nil {
		l.remove(jobID)
		return
	}

	next, ok, err := trigger.NextFireTime(cfg.Schedule, time.Now())
	if err != nil || !ok {
		l.remove(jobID)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.byJob[jobID]; ok {
		existing.next = next
		heap.Fix(&l.queue, existing.index)
		return
	}
	e := &fireEntry{key: jobID, jobID: jobID, next: next}
	heap.Push(&l.queue, e)
	l.byJob[jobID] = e
	l.pokeWake()
}

func (l *Loop) remove(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byJob[jobID]
	if !ok {
		return
	}
	heap.Remove(&l.queue, e.index)
	delete(l.byJob, jobID)
}

func (l *Loop) pokeWake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) handleMutation(ev MutationEvent) {
	switch ev.Kind {
	case MutationDeleted:
		l.remove(ev.JobID)
	default:
		l.rebuild(ev.JobID)
	}
}

// fire submits the due entry to the worker pool, applying misfire grace and
// re-inserting the job's next occurrence.
func (l *Loop) fire(ctx context.Context, e *fireEntry, now time.Time) {
	if lateBy := now.Sub(e.next); lateBy > l.MisfireGrace {
		slog.Warn("scheduled fire missed misfire grace, skipping", "job_id", e.jobID, "late_by", lateBy)
	} else {
		jobID, actor, retryCount := e.jobID, e.actor, e.retryCount
		submitted := l.Pool.TrySubmit(func() {
			if _, err := l.Exec.ExecuteJob(ctx, jobID, jobstore.ModeScheduled, orDefault(actor, "system"), false, retryCount); err != nil {
				slog.Error("scheduled execution failed", "job_id", jobID, "error", err)
			}
		})
		if !submitted {
			slog.Warn("worker pool full, fire dropped (misfire)", "job_id", e.jobID)
		}
	}

	if !e.isRetry {
		l.rebuild(e.jobID)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ScheduleRetry implements executor.Rescheduler.
func (l *Loop) ScheduleRetry(jobID string, after time.Duration, actor string, carriedRetryCount int) {
	l.mu.Lock()
	l.retrySeq++
	e := &fireEntry{
		key:        jobID + "#retry#" + strconv.Itoa(l.retrySeq),
		jobID:      jobID,
		next:       time.Now().Add(after),
		isRetry:    true,
		actor:      actor,
		retryCount: carriedRetryCount,
	}
	heap.Push(&l.queue, e)
	l.byJob[e.key] = e
	l.mu.Unlock()
	l.pokeWake()
}
