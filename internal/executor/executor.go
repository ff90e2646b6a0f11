// Package executor binds a job_id to an actual run: load the job, pick a
// backend, record the start, dispatch, and record the terminal outcome.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/apierr"
	"github.com/nextlevelbuilder/jobrunner/internal/backend"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// Rescheduler is the slice of the scheduler loop the executor needs to
// schedule a retry. Declared here, at the point of use, so executor does
// not import scheduler.
type Rescheduler interface {
	ScheduleRetry(jobID string, after time.Duration, actor string, carriedRetryCount int)
}

// Canceller is the slice of internal/dispatch the executor needs to revoke
// a live agent assignment on cancellation. Declared here, at the point of
// use, so executor does not import dispatch; dispatch's Registry satisfies
// this.
type Canceller interface {
	Revoke(ctx context.Context, executionID string) error
}

// Executor binds jobs to backends and records outcomes through the job
// store.
type Executor struct {
	Jobs           jobstore.JobStore
	Executions     jobstore.ExecutionStore
	Backends       map[string]backend.Backend
	Reschedule     Rescheduler
	AgentCanceller Canceller

	mu          sync.Mutex
	running     map[string]bool              // job_id -> has a live scheduled execution
	cancelFuncs map[string]context.CancelFunc // execution_id -> cancel for its in-flight backend call
}

// New constructs an Executor over the given stores and backend set. The
// backend map is keyed by jobstore.Type* constants.
func New(jobs jobstore.JobStore, executions jobstore.ExecutionStore, backends map[string]backend.Backend, reschedule Rescheduler) *Executor {
	return &Executor{
		Jobs:        jobs,
		Executions:  executions,
		Backends:    backends,
		Reschedule:  reschedule,
		running:     make(map[string]bool),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// ExecuteJob binds a job_id to an actual run. retryCount is 0 for a fresh
// invocation and is carried forward by the scheduler loop when this call
// is itself a scheduled retry.
func (e *Executor) ExecuteJob(ctx context.Context, jobID, mode, actor string, allowOverlap bool, retryCount int) (*jobstore.Execution, error) {
	job, cfg, _, err := e.Jobs.GetJob(jobID)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrNotFound, err.Error())
	}

	if !job.Enabled {
		if mode == jobstore.ModeScheduled {
			return nil, nil // skip silently, no history row
		}
		return nil, apierr.Wrap(apierr.ErrForbidden, "job is disabled")
	}

	if mode == jobstore.ModeScheduled || !allowOverlap {
		e.mu.Lock()
		if e.running[jobID] {
			e.mu.Unlock()
			return nil, apierr.Wrap(apierr.ErrAlreadyRunning, fmt.Sprintf("job %s already has a live execution", jobID))
		}
		e.running[jobID] = true
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			delete(e.running, jobID)
			e.mu.Unlock()
		}()
	}

	be, ok := e.Backends[cfg.Type]
	if !ok {
		executionID, err := e.Executions.RecordExecutionStart(jobID, job.Name, mode, actor, "", retryCount)
		if err != nil {
			return nil, apierr.Wrap(apierr.ErrStorage, err.Error())
		}
		if err := e.Executions.RecordExecutionEnd(executionID, jobstore.StatusFailed, "", fmt.Sprintf("unknown job type %q", cfg.Type), 0, nil); err != nil {
			return nil, apierr.Wrap(apierr.ErrStorage, err.Error())
		}
		return e.Executions.GetExecution(executionID)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = jobstore.DefaultTimeoutSeconds
	}

	startTime := time.Now()
	executionID, err := e.Executions.RecordExecutionStart(jobID, job.Name, mode, actor, "", retryCount)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrStorage, err.Error())
	}

	deadline := startTime.Add(time.Duration(timeout) * time.Second)

	execCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFuncs[executionID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancelFuncs, executionID)
		e.mu.Unlock()
		cancel()
	}()

	result, err := be.Execute(execCtx, cfg, executionID, deadline)
	if err != nil {
		result = &backend.Result{Success: false, Error: err.Error(), TerminalNow: true}
	}

	if !result.TerminalNow {
		// The backend (e.g. AgentBackend -> dispatch.Registry.Dispatch) has
		// already recorded the correct interim status itself, either
		// queued or assigned depending on whether a candidate agent was
		// found; writing a status here would clobber that distinction and
		// strand queued executions in "assigned" with no real assignment.
		return e.Executions.GetExecution(executionID)
	}

	status := jobstore.StatusSuccess
	switch {
	case result.ReturnCode == backend.TimeoutReturnCode:
		status = jobstore.StatusTimeout
	case !result.Success:
		status = jobstore.StatusFailed
	}

	if err := e.Executions.RecordExecutionEnd(executionID, status, result.Output, result.Error, result.ReturnCode, result.Metadata); err != nil {
		return nil, apierr.Wrap(apierr.ErrStorage, err.Error())
	}

	e.maybeRetry(cfg, jobID, actor, status, retryCount)

	return e.Executions.GetExecution(executionID)
}

// Cancel requests cancellation of a non-terminal execution: for a running
// execution it cancels the in-flight backend context, killing any
// subprocess; for a queued or assigned execution it revokes the agent
// assignment through AgentCanceller. Already-terminal executions are a
// no-op — cancellation is idempotent.
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	exec, err := e.Executions.GetExecution(executionID)
	if err != nil {
		return apierr.Wrap(apierr.ErrNotFound, err.Error())
	}
	if exec.Terminal() {
		return nil
	}

	switch exec.Status {
	case jobstore.StatusQueued, jobstore.StatusAssigned:
		if e.AgentCanceller != nil {
			if err := e.AgentCanceller.Revoke(ctx, executionID); err != nil {
				return apierr.Wrap(apierr.ErrStorage, err.Error())
			}
		}
	default:
		e.mu.Lock()
		cancel, ok := e.cancelFuncs[executionID]
		e.mu.Unlock()
		if ok {
			cancel()
		}
	}

	return e.Executions.CancelExecution(executionID)
}
