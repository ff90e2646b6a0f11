package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/backend"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// fakeStore is a minimal in-memory jobstore.JobStore + jobstore.ExecutionStore
// for exercising the executor in isolation, rather than a real file/pg
// backend.
type fakeStore struct {
	mu    sync.Mutex
	job   *jobstore.Job
	cfg   *jobstore.Config
	execs map[string]*jobstore.Execution
}

func newFakeStore(job *jobstore.Job, cfg *jobstore.Config) *fakeStore {
	return &fakeStore{job: job, cfg: cfg, execs: make(map[string]*jobstore.Execution)}
}

func (s *fakeStore) CreateJob(job *jobstore.Job) (string, error) { return "", nil }
func (s *fakeStore) GetJob(jobID string) (*jobstore.Job, *jobstore.Config, *jobstore.FlatView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil || s.job.ID != jobID {
		return nil, nil, nil, errNotFound
	}
	fv := jobstore.Flatten(s.cfg)
	return s.job, s.cfg, &fv, nil
}
func (s *fakeStore) ListJobs(jobstore.JobFilter) ([]*jobstore.Job, error) { return nil, nil }
func (s *fakeStore) UpdateJob(jobID, yaml string) error                  { return nil }
func (s *fakeStore) DeleteJob(jobID string) error                        { return nil }
func (s *fakeStore) ToggleJob(jobID string, enabled *bool) (bool, error) { return false, nil }

func (s *fakeStore) RecordExecutionStart(jobID, jobName, mode, executedBy, tz string, retryCount int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := jobstore.NewID("exec")
	s.execs[id] = &jobstore.Execution{
		ID: id, JobID: jobID, JobName: jobName, Status: jobstore.StatusRunning,
		StartTime: time.Now(), ExecutionMode: mode, ExecutedBy: executedBy, RetryCount: retryCount,
	}
	return id, nil
}
func (s *fakeStore) RecordExecutionEnd(executionID, status, output, errMsg string, returnCode int, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return errNotFound
	}
	e.Status, e.Output, e.ErrorMessage, e.ReturnCode, e.Metadata = status, output, errMsg, returnCode, metadata
	return nil
}
func (s *fakeStore) GetExecution(executionID string) (*jobstore.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return nil, errNotFound
	}
	return e, nil
}
func (s *fakeStore) ListExecutions(jobstore.ExecutionFilter) ([]*jobstore.Execution, error) {
	return nil, nil
}
func (s *fakeStore) UpdateExecutionStatus(executionID, status string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return errNotFound
	}
	e.Status = status
	return nil
}
func (s *fakeStore) CancelExecution(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return errNotFound
	}
	if e.Terminal() {
		return nil
	}
	e.Status = jobstore.StatusCancelled
	return nil
}
func (s *fakeStore) PruneOlderThan(days int) (int, error) { return 0, nil }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNotFound = fakeErr("not found")

type fakeBackend struct {
	result *backend.Result
	err    error
}

func (b *fakeBackend) Execute(ctx context.Context, cfg *jobstore.Config, executionID string, deadline time.Time) (*backend.Result, error) {
	return b.result, b.err
}

type fakeRescheduler struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRescheduler) ScheduleRetry(jobID string, after time.Duration, actor string, carriedRetryCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, jobID)
}

func baseJob() (*jobstore.Job, *jobstore.Config) {
	job := &jobstore.Job{ID: "job-1", Name: "test-job", Enabled: true}
	cfg := &jobstore.Config{Type: jobstore.TypePowerShell, Timeout: 60, MaxRetries: 2}
	return job, cfg
}

func TestExecuteJob_Success(t *testing.T) {
	job, cfg := baseJob()
	store := newFakeStore(job, cfg)
	be := &fakeBackend{result: &backend.Result{Success: true, Output: "ok", TerminalNow: true}}
	exec := New(store, store, map[string]backend.Backend{jobstore.TypePowerShell: be}, nil)

	got, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeManual, "tester", false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != jobstore.StatusSuccess {
		t.Errorf("expected success status, got %q", got.Status)
	}
}

func TestExecuteJob_DisabledJobRejectedForManual(t *testing.T) {
	job, cfg := baseJob()
	job.Enabled = false
	store := newFakeStore(job, cfg)
	exec := New(store, store, map[string]backend.Backend{}, nil)

	_, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeManual, "tester", false, 0)
	if err == nil {
		t.Fatal("expected an error for a disabled job run manually")
	}
}

func TestExecuteJob_DisabledJobSilentlySkippedWhenScheduled(t *testing.T) {
	job, cfg := baseJob()
	job.Enabled = false
	store := newFakeStore(job, cfg)
	exec := New(store, store, map[string]backend.Backend{}, nil)

	got, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeScheduled, "scheduler", false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil execution for a disabled scheduled run, got %+v", got)
	}
}

func TestExecuteJob_OverlapRejectedWithoutAllowOverlap(t *testing.T) {
	job, cfg := baseJob()
	store := newFakeStore(job, cfg)
	blocking := make(chan struct{})
	be := &blockingBackend{release: blocking}
	exec := New(store, store, map[string]backend.Backend{jobstore.TypePowerShell: be}, nil)

	done := make(chan struct{})
	go func() {
		exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeManual, "tester", false, 0)
		close(done)
	}()

	// Give the first call time to mark the job running.
	time.Sleep(20 * time.Millisecond)
	_, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeManual, "tester", false, 0)
	if err == nil {
		t.Error("expected already-running error for a concurrent overlap")
	}

	close(blocking)
	<-done
}

type blockingBackend struct {
	release chan struct{}
}

func (b *blockingBackend) Execute(ctx context.Context, cfg *jobstore.Config, executionID string, deadline time.Time) (*backend.Result, error) {
	<-b.release
	return &backend.Result{Success: true, TerminalNow: true}, nil
}

func TestExecuteJob_FailureSchedulesRetry(t *testing.T) {
	job, cfg := baseJob()
	store := newFakeStore(job, cfg)
	be := &fakeBackend{result: &backend.Result{Success: false, Error: "boom", TerminalNow: true}}
	resched := &fakeRescheduler{}
	exec := New(store, store, map[string]backend.Backend{jobstore.TypePowerShell: be}, resched)

	got, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeScheduled, "scheduler", true, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != jobstore.StatusFailed {
		t.Errorf("expected failed status, got %q", got.Status)
	}
	if len(resched.calls) != 1 {
		t.Fatalf("expected exactly one retry to be scheduled, got %d", len(resched.calls))
	}
}

func TestExecuteJob_RetryExhaustedDoesNotReschedule(t *testing.T) {
	job, cfg := baseJob()
	cfg.MaxRetries = 1
	store := newFakeStore(job, cfg)
	be := &fakeBackend{result: &backend.Result{Success: false, Error: "boom", TerminalNow: true}}
	resched := &fakeRescheduler{}
	exec := New(store, store, map[string]backend.Backend{jobstore.TypePowerShell: be}, resched)

	// retryCount == MaxRetries means this was already the final retry.
	_, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeScheduled, "scheduler", true, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resched.calls) != 0 {
		t.Errorf("expected no retry once max_retries reached, got %d", len(resched.calls))
	}
}

func TestExecuteJob_UnknownBackendTypeRecordsFailure(t *testing.T) {
	job, cfg := baseJob()
	cfg.Type = "nonexistent"
	store := newFakeStore(job, cfg)
	exec := New(store, store, map[string]backend.Backend{}, nil)

	got, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeManual, "tester", false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != jobstore.StatusFailed {
		t.Errorf("expected failed status for unknown backend type, got %q", got.Status)
	}
}

// dispatchingBackend stands in for the agent backend: like the dispatcher,
// it writes the assigned status itself before handing back a non-terminal
// result.
type dispatchingBackend struct {
	store *fakeStore
}

func (b *dispatchingBackend) Execute(ctx context.Context, cfg *jobstore.Config, executionID string, deadline time.Time) (*backend.Result, error) {
	if err := b.store.UpdateExecutionStatus(executionID, jobstore.StatusAssigned, nil); err != nil {
		return nil, err
	}
	return &backend.Result{TerminalNow: false}, nil
}

func TestExecuteJob_NonTerminalLeavesAssignedStatus(t *testing.T) {
	job, cfg := baseJob()
	cfg.Type = jobstore.TypeAgentJob
	store := newFakeStore(job, cfg)
	be := &dispatchingBackend{store: store}
	exec := New(store, store, map[string]backend.Backend{jobstore.TypeAgentJob: be}, nil)

	got, err := exec.ExecuteJob(context.Background(), job.ID, jobstore.ModeManual, "tester", true, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != jobstore.StatusAssigned {
		t.Errorf("expected assigned status for a non-terminal agent dispatch, got %q", got.Status)
	}
}
