package jobstore

// JobStore is the single source of truth for jobs. File- and
// Postgres-backed implementations live in the file/ and pg/ subpackages.
type JobStore interface {
	CreateJob(job *Job) (string, error)
	GetJob(jobID string) (*Job, *Config, *FlatView, error)
	ListJobs(filter JobFilter) ([]*Job, error)
	UpdateJob(jobID string, yamlBlob string) error
	DeleteJob(jobID string) error
	ToggleJob(jobID string, enabled *bool) (bool, error)
}

// ExecutionStore is the single source of truth for execution history.
type ExecutionStore interface {
	RecordExecutionStart(jobID, jobName, mode, executedBy, tz string, retryCount int) (string, error)
	RecordExecutionEnd(executionID, status, output, errMsg string, returnCode int, metadata map[string]string) error
	GetExecution(executionID string) (*Execution, error)
	ListExecutions(filter ExecutionFilter) ([]*Execution, error)
	UpdateExecutionStatus(executionID, status string, metadata map[string]string) error
	CancelExecution(executionID string) error
	PruneOlderThan(days int) (int, error)
}

// Store composes both facets; most concrete backends implement one type that
// satisfies both interfaces at once, but callers should depend on the
// narrower interface they actually need.
type Store interface {
	JobStore
	ExecutionStore
}
