package executor

import (
	"math/rand/v2"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// maybeRetry schedules a brand new execution record through the scheduler
// loop after retry_delay, rather than retrying inline and blocking the
// calling goroutine, so history stays append-only and the loop owns
// timing instead of the executor blocking on time.Sleep. retryCount is the
// number of retries already carried into this attempt (0 on a fresh
// invocation, threaded forward by the scheduler loop on each subsequent
// retry) — cfg.RetryCount is only the static value parsed from the job's
// YAML and never changes across retries, so it cannot be used as the
// cutoff or the value carried forward.
func (e *Executor) maybeRetry(cfg *jobstore.Config, jobID, actor, terminalStatus string, retryCount int) {
	if e.Reschedule == nil {
		return
	}

	switch terminalStatus {
	case jobstore.StatusCancelled:
		return
	case jobstore.StatusTimeout:
		if !cfg.RetryOnTimeout {
			return
		}
	case jobstore.StatusFailed:
		// falls through to the retry-count check below
	default:
		return
	}

	if retryCount >= cfg.MaxRetries {
		return
	}

	delaySeconds := cfg.RetryDelay
	if delaySeconds <= 0 {
		delaySeconds = jobstore.DefaultRetryDelaySeconds
	}
	delay := backoffWithJitter(time.Duration(delaySeconds)*time.Second, 30*time.Minute, retryCount)

	e.Reschedule.ScheduleRetry(jobID, delay, actor, retryCount+1)
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
