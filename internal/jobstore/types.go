// Package jobstore holds the durable job and execution-history data model
// plus the store interfaces other components depend on.
package jobstore

import "time"

// Execution status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusQueued    = "queued"
	StatusAssigned  = "assigned"
)

// Execution mode values.
const (
	ModeManual    = "manual"
	ModeScheduled = "scheduled"
	ModeAPI       = "api"
)

// Job type values.
const (
	TypePowerShell = "powershell"
	TypeSQL        = "sql"
	TypeAgentJob   = "agent_job"
	TypeUnknown    = "unknown"
)

// Job is the durable, named, declarative unit of work.
type Job struct {
	ID             string    `json:"job_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Version        string    `json:"version"`
	Enabled        bool      `json:"enabled"`
	YAMLConfig     string    `json:"yaml_configuration"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

// Param is a single PowerShell script parameter.
type Param struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// PowerShellConfig holds the PowerShell backend inputs.
type PowerShellConfig struct {
	InlineScript     string  `json:"inlineScript,omitempty" yaml:"inlineScript,omitempty"`
	ScriptPath       string  `json:"scriptPath,omitempty" yaml:"scriptPath,omitempty"`
	ExecutionPolicy  string  `json:"executionPolicy,omitempty" yaml:"executionPolicy,omitempty"`
	Parameters       []Param `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	WorkingDirectory string  `json:"workingDirectory,omitempty" yaml:"workingDirectory,omitempty"`
}

// SQLConfig holds the SQL backend inputs.
type SQLConfig struct {
	Query      string `json:"query" yaml:"query"`
	Connection string `json:"connection" yaml:"connection"`
	MaxRows    int    `json:"max_rows,omitempty" yaml:"max_rows,omitempty"`
}

// Step is one unit of work handed to an agent.
type Step struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Action  string `json:"action" yaml:"action"` // powershell | cmd | python
	Script  string `json:"script,omitempty" yaml:"script,omitempty"`
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	Timeout int     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AgentConfig holds the agent backend inputs.
type AgentConfig struct {
	AgentPool         string `json:"agent_pool" yaml:"agent_pool"`
	ExecutionStrategy string `json:"execution_strategy,omitempty" yaml:"execution_strategy,omitempty"`
	Steps             []Step `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Schedule is the tagged variant describing when a job should fire.
type Schedule struct {
	Type     string            `json:"type" yaml:"type"` // cron | interval | date
	Cron     *CronSchedule     `json:"cron,omitempty" yaml:"-"`
	Interval *IntervalSchedule `json:"interval,omitempty" yaml:"interval,omitempty"`
	Date     *DateSchedule     `json:"date,omitempty" yaml:"-"`
}

// CronSchedule is the six-field cron variant.
type CronSchedule struct {
	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`
}

// IntervalSchedule is the sum-of-components variant.
type IntervalSchedule struct {
	Days     int    `json:"days,omitempty" yaml:"days,omitempty"`
	Hours    int    `json:"hours,omitempty" yaml:"hours,omitempty"`
	Minutes  int    `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	Seconds  int    `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	Timezone string `json:"timezone,omitempty" yaml:"-"`
}

// DateSchedule is the absolute-instant ("once") variant.
type DateSchedule struct {
	RunDate  time.Time `json:"run_date"`
	Timezone string    `json:"timezone"`
}

// Config is the parsed, cached form of a Job's YAML blob.
// It is a pure function of the YAML text; Store implementations must re-derive it
// whenever the blob changes and never let it diverge.
type Config struct {
	Type           string            `json:"type"`
	PowerShell     *PowerShellConfig `json:"powershell,omitempty"`
	SQL            *SQLConfig        `json:"sql,omitempty"`
	Agent          *AgentConfig      `json:"agent,omitempty"`
	Schedule       *Schedule         `json:"schedule,omitempty"`
	Timeout        int               `json:"timeout"`
	RetryCount     int               `json:"retry_count"`
	MaxRetries     int               `json:"max_retries"`
	RetryDelay     int               `json:"retry_delay"`
	RetryOnTimeout bool              `json:"retry_on_timeout"`
}

// DefaultTimeoutSeconds is applied when a job omits `timeout`.
const DefaultTimeoutSeconds = 300

// DefaultRetryDelaySeconds is applied when a job omits `retry_delay`.
const DefaultRetryDelaySeconds = 30

// FlatView is the API-layer convenience projection derived from a job's parsed configuration.
// It is always derived from Config and must never be stored independently.
type FlatView struct {
	JobType         string `json:"job_type"`
	ScheduleType    string `json:"schedule_type,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	CronExpression  string `json:"cron_expression,omitempty"`
	ScriptContent   string `json:"script_content,omitempty"`
	Query           string `json:"query,omitempty"`
	Connection      string `json:"connection,omitempty"`
	Timeout         int    `json:"timeout"`
}

// Execution is one attempt to run a job.
type Execution struct {
	ID                string            `json:"execution_id"`
	JobID             string            `json:"job_id"`
	JobName           string            `json:"job_name"`
	Status            string            `json:"status"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           *time.Time        `json:"end_time,omitempty"`
	DurationSeconds   *float64          `json:"duration_seconds,omitempty"`
	Output            string            `json:"output_log,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	ReturnCode        int               `json:"return_code"`
	RetryCount        int               `json:"retry_count"`
	MaxRetries        int               `json:"max_retries"`
	ExecutionMode     string            `json:"execution_mode"`
	ExecutedBy        string            `json:"executed_by,omitempty"`
	ExecutionTimezone string            `json:"execution_timezone,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Terminal reports whether the execution has reached a terminal status.
func (e *Execution) Terminal() bool {
	switch e.Status {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobFilter supports ListJobs' enabled_only/job_type/limit filters.
type JobFilter struct {
	EnabledOnly bool
	JobType     string
	Limit       int
}

// ExecutionFilter supports ListExecutions' by-job/by-status/limit filters.
type ExecutionFilter struct {
	JobID  string
	Status string
	Limit  int
}
