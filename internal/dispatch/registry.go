package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/apierr"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// Registry is the agent registry plus assignment bookkeeping.
type Registry struct {
	Executions        jobstore.ExecutionStore
	HeartbeatInterval time.Duration

	mu          sync.Mutex
	agents      map[string]*Agent
	assignments map[string]*Assignment // keyed by execution_id, at most one live per execution
}

// New constructs a Registry. heartbeatInterval feeds the offline/orphan
// staleness windows: offline at 2x, orphan at 3x.
func New(executions jobstore.ExecutionStore, heartbeatInterval time.Duration) *Registry {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &Registry{
		Executions:        executions,
		HeartbeatInterval: heartbeatInterval,
		agents:            make(map[string]*Agent),
		assignments:       make(map[string]*Assignment),
	}
}

// Register enrolls a new agent and issues its auth token.
func (r *Registry) Register(facts Agent) (authToken string, err error) {
	if facts.AgentID == "" {
		return "", fmt.Errorf("agent_id is required")
	}
	token := jobstore.NewID("tok")

	r.mu.Lock()
	defer r.mu.Unlock()

	facts.AuthToken = token
	facts.Status = StatusOnline
	facts.LastHeartbeatAt = time.Now()
	r.agents[facts.AgentID] = &facts

	return token, nil
}

// Heartbeat records liveness and telemetry for a registered agent.
func (r *Registry) Heartbeat(agentID, token string, m HeartbeatMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return apierr.Wrap(apierr.ErrNotFound, "unknown agent "+agentID)
	}
	if a.AuthToken != token {
		return apierr.Wrap(apierr.ErrForbidden, "invalid agent token")
	}

	a.LastHeartbeatAt = time.Now()
	a.MemoryMB = m.MemoryMB
	a.FreeDiskMB = m.FreeDiskMB
	a.ActiveJobs = m.ActiveJobs
	if a.Status == StatusOffline {
		a.Status = StatusOnline
	}
	return nil
}

// StatusUpdate records an intermediate progress report. It updates
// execution metadata only, leaving status untouched.
func (r *Registry) StatusUpdate(executionID, state, message string) error {
	exec, err := r.Executions.GetExecution(executionID)
	if err != nil {
		return apierr.Wrap(apierr.ErrNotFound, err.Error())
	}
	meta := exec.Metadata
	if meta == nil {
		meta = make(map[string]string, 2)
	}
	meta["agent_state"] = state
	if message != "" {
		meta["agent_message"] = message
	}
	return r.Executions.UpdateExecutionStatus(executionID, exec.Status, meta)
}

// Complete records a terminal report: finalizes the history row, releases
// the assignment, and decrements the agent's active-job counter.
func (r *Registry) Complete(executionID string, success bool, output, errMsg string, logs map[string]string) error {
	status := jobstore.StatusSuccess
	if !success {
		status = jobstore.StatusFailed
	}
	if err := r.Executions.RecordExecutionEnd(executionID, status, output, errMsg, 0, logs); err != nil {
		return apierr.Wrap(apierr.ErrStorage, err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.releaseAssignmentLocked(executionID); a != nil {
		if agent, ok := r.agents[a.AgentID]; ok && agent.ActiveJobs > 0 {
			agent.ActiveJobs--
		}
	}
	return nil
}

func (r *Registry) releaseAssignmentLocked(executionID string) *Assignment {
	a, ok := r.assignments[executionID]
	if !ok {
		return nil
	}
	now := time.Now()
	a.CompletedAt = &now
	delete(r.assignments, executionID)
	return a
}

// AssignedAgent returns the agent_id currently assigned to executionID, if
// any. Used by the HTTP layer to authenticate agent callbacks.
func (r *Registry) AssignedAgent(executionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[executionID]
	if !ok {
		return "", false
	}
	return a.AgentID, true
}

// AgentToken returns the current auth token for agentID, if registered.
func (r *Registry) AgentToken(agentID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return "", false
	}
	return a.AuthToken, true
}

// Agents returns a snapshot of the registered agents, for the `agent list`
// CLI command and the HTTP API.
func (r *Registry) Agents() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out
}
