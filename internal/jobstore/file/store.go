// Package file implements jobstore.Store backed by a single JSON file:
// mutex-guarded in-memory state, persisted via os.MkdirAll and
// json.MarshalIndent on write.
package file

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/apierr"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

type fileData struct {
	Version    int                            `json:"version"`
	Jobs       map[string]*jobstore.Job       `json:"jobs"`
	Executions map[string]*jobstore.Execution `json:"executions"`
}

// Store is a JSON-file-backed jobstore.Store for standalone deployment and
// for tests.
type Store struct {
	path string
	mu   sync.Mutex
	data fileData
}

// New opens (or initializes) the file store at path.
func New(path string) (*Store, error) {
	s := &Store{path: path, data: fileData{
		Version:    1,
		Jobs:       make(map[string]*jobstore.Job),
		Executions: make(map[string]*jobstore.Execution),
	}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "read store file: "+err.Error())
	}
	var d fileData
	if err := json.Unmarshal(raw, &d); err != nil {
		return apierr.Wrap(apierr.ErrStorage, "parse store file: "+err.Error())
	}
	if d.Jobs == nil {
		d.Jobs = make(map[string]*jobstore.Job)
	}
	if d.Executions == nil {
		d.Executions = make(map[string]*jobstore.Execution)
	}
	s.data = d
	return nil
}

// saveUnsafe must be called with s.mu held.
func (s *Store) saveUnsafe() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apierr.Wrap(apierr.ErrStorage, "mkdir store dir: "+err.Error())
	}
	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "marshal store: "+err.Error())
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return apierr.Wrap(apierr.ErrStorage, "write store file: "+err.Error())
	}
	return nil
}

// CreateJob implements jobstore.JobStore.
func (s *Store) CreateJob(job *jobstore.Job) (string, error) {
	if err := jobstore.ValidateJobName(job.Name); err != nil {
		return "", err
	}
	_, cfg := jobstore.ParseYAML(job.YAMLConfig)
	if err := jobstore.ValidateConfig(cfg); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job.ID = jobstore.NewID("job")
	job.Version = "2.0"
	job.CreatedAt = time.Now().UTC()
	job.ModifiedAt = job.CreatedAt
	s.data.Jobs[job.ID] = job

	if err := s.saveUnsafe(); err != nil {
		return "", err
	}
	return job.ID, nil
}

// GetJob implements jobstore.JobStore.
func (s *Store) GetJob(jobID string) (*jobstore.Job, *jobstore.Config, *jobstore.FlatView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.Jobs[jobID]
	if !ok {
		return nil, nil, nil, apierr.ErrNotFound
	}
	_, cfg := jobstore.ParseYAML(job.YAMLConfig)
	fv := jobstore.Flatten(cfg)
	return job, cfg, &fv, nil
}

// ListJobs implements jobstore.JobStore.
func (s *Store) ListJobs(filter jobstore.JobFilter) ([]*jobstore.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*jobstore.Job, 0, len(s.data.Jobs))
	for _, job := range s.data.Jobs {
		if filter.EnabledOnly && !job.Enabled {
			continue
		}
		if filter.JobType != "" {
			_, cfg := jobstore.ParseYAML(job.YAMLConfig)
			if cfg.Type != filter.JobType {
				continue
			}
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateJob implements jobstore.JobStore. The caller is responsible for
// having already rebuilt the YAML blob when updating via flat-form fields
// (see jobstore.RenderYAML); this method always treats yamlBlob as the new
// source of truth.
func (s *Store) UpdateJob(jobID string, yamlBlob string) error {
	name, cfg := jobstore.ParseYAML(yamlBlob)
	if err := jobstore.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := jobstore.ValidateJobName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.Jobs[jobID]
	if !ok {
		return apierr.ErrNotFound
	}
	job.Name = name
	job.YAMLConfig = yamlBlob
	job.ModifiedAt = time.Now().UTC()
	return s.saveUnsafe()
}

// DeleteJob implements jobstore.JobStore. Execution history is retained.
func (s *Store) DeleteJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Jobs[jobID]; !ok {
		return apierr.ErrNotFound
	}
	delete(s.data.Jobs, jobID)
	return s.saveUnsafe()
}

// ToggleJob implements jobstore.JobStore.
func (s *Store) ToggleJob(jobID string, enabled *bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.data.Jobs[jobID]
	if !ok {
		return false, apierr.ErrNotFound
	}
	if enabled != nil {
		job.Enabled = *enabled
	} else {
		job.Enabled = !job.Enabled
	}
	job.ModifiedAt = time.Now().UTC()
	if err := s.saveUnsafe(); err != nil {
		return false, err
	}
	return job.Enabled, nil
}

// RecordExecutionStart implements jobstore.ExecutionStore.
func (s *Store) RecordExecutionStart(jobID, jobName, mode, executedBy, tz string, retryCount int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := jobstore.NewID("exec")
	s.data.Executions[id] = &jobstore.Execution{
		ID:                id,
		JobID:             jobID,
		JobName:           jobName,
		Status:            jobstore.StatusRunning,
		StartTime:         time.Now().UTC(),
		ExecutionMode:     mode,
		ExecutedBy:        executedBy,
		ExecutionTimezone: tz,
		RetryCount:        retryCount,
	}
	if err := s.saveUnsafe(); err != nil {
		return "", err
	}
	return id, nil
}

// RecordExecutionEnd implements jobstore.ExecutionStore. Refuses to overwrite
// a row already terminal.
func (s *Store) RecordExecutionEnd(executionID, status, output, errMsg string, returnCode int, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.data.Executions[executionID]
	if !ok {
		return apierr.ErrNotFound
	}
	if exec.Terminal() {
		return apierr.ErrAlreadyTerminal
	}

	now := time.Now().UTC()
	exec.Status = status
	exec.EndTime = &now
	exec.Output = output
	exec.ErrorMessage = errMsg
	exec.ReturnCode = returnCode
	if metadata != nil {
		exec.Metadata = metadata
	}
	dur := now.Sub(exec.StartTime).Seconds()
	exec.DurationSeconds = &dur

	return s.saveUnsafe()
}

// GetExecution implements jobstore.ExecutionStore.
func (s *Store) GetExecution(executionID string) (*jobstore.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.data.Executions[executionID]
	if !ok {
		return nil, apierr.ErrNotFound
	}
	return exec, nil
}

// ListExecutions implements jobstore.ExecutionStore.
func (s *Store) ListExecutions(filter jobstore.ExecutionFilter) ([]*jobstore.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*jobstore.Execution, 0, len(s.data.Executions))
	for _, e := range s.data.Executions {
		if filter.JobID != "" && e.JobID != filter.JobID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateExecutionStatus implements jobstore.ExecutionStore, used for the
// non-terminal queued/assigned transitions.
func (s *Store) UpdateExecutionStatus(executionID, status string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.data.Executions[executionID]
	if !ok {
		return apierr.ErrNotFound
	}
	if exec.Terminal() {
		return apierr.ErrAlreadyTerminal
	}
	exec.Status = status
	if metadata != nil {
		if exec.Metadata == nil {
			exec.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			exec.Metadata[k] = v
		}
	}
	return s.saveUnsafe()
}

// CancelExecution implements jobstore.ExecutionStore. Idempotent: a no-op
// on a row that is already terminal, mirroring RecordExecutionEnd's
// first-writer-wins guard rather than returning already_terminal as an
// error.
func (s *Store) CancelExecution(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.data.Executions[executionID]
	if !ok {
		return apierr.ErrNotFound
	}
	if exec.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	exec.Status = jobstore.StatusCancelled
	exec.EndTime = &now
	dur := now.Sub(exec.StartTime).Seconds()
	exec.DurationSeconds = &dur
	if exec.ErrorMessage == "" {
		exec.ErrorMessage = "cancelled by request"
	}

	return s.saveUnsafe()
}

// PruneOlderThan implements jobstore.ExecutionStore.
func (s *Store) PruneOlderThan(days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.data.Executions {
		if e.Terminal() && e.StartTime.Before(cutoff) {
			delete(s.data.Executions, id)
			n++
		}
	}
	if n > 0 {
		if err := s.saveUnsafe(); err != nil {
			return n, err
		}
	}
	return n, nil
}
