// Package dispatch implements agent dispatch: the agent registry and
// the assignment protocol between the scheduler and long-lived agent
// workers.
package dispatch

import "time"

// Agent status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusBusy    = "busy"
)

// Agent is a long-lived passive worker that receives job assignments.
type Agent struct {
	AgentID         string    `json:"agent_id"`
	PoolID          string    `json:"pool_id"`
	EndpointURL     string    `json:"endpoint_url"`
	Capabilities    []string  `json:"capabilities,omitempty"`
	MaxParallelJobs int       `json:"max_parallel_jobs"`
	OS              string    `json:"os,omitempty"`
	CPUCount        int       `json:"cpu_count,omitempty"`
	MemoryMB        int       `json:"memory_mb,omitempty"`
	FreeDiskMB      int       `json:"free_disk_mb,omitempty"`
	AuthToken       string    `json:"-"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Status          string    `json:"status"`
	ActiveJobs      int       `json:"active_jobs"`
}

// Assignment links an execution record to the agent running it.
type Assignment struct {
	ID          string     `json:"assignment_id"`
	ExecutionID string     `json:"execution_id"`
	AgentID     string     `json:"agent_id"`
	PoolID      string     `json:"pool_id"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HeartbeatMetrics carries the telemetry reported on each heartbeat call.
type HeartbeatMetrics struct {
	CPUPercent  float64
	MemoryMB    int
	FreeDiskMB  int
	ActiveJobs  int
}
