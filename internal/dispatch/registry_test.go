package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

type fakeExecutions struct {
	mu    sync.Mutex
	execs map[string]*jobstore.Execution
}

func newFakeExecutions() *fakeExecutions {
	return &fakeExecutions{execs: make(map[string]*jobstore.Execution)}
}

func (s *fakeExecutions) put(e *jobstore.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[e.ID] = e
}

func (s *fakeExecutions) RecordExecutionStart(jobID, jobName, mode, executedBy, tz string, retryCount int) (string, error) {
	return "", nil
}
func (s *fakeExecutions) RecordExecutionEnd(executionID, status, output, errMsg string, returnCode int, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return errNotFoundTest
	}
	e.Status, e.Output, e.ErrorMessage, e.Metadata = status, output, errMsg, metadata
	return nil
}
func (s *fakeExecutions) GetExecution(executionID string) (*jobstore.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return nil, errNotFoundTest
	}
	return e, nil
}
func (s *fakeExecutions) ListExecutions(filter jobstore.ExecutionFilter) ([]*jobstore.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*jobstore.Execution
	for _, e := range s.execs {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
func (s *fakeExecutions) UpdateExecutionStatus(executionID, status string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return errNotFoundTest
	}
	e.Metadata = metadata
	return nil
}
func (s *fakeExecutions) CancelExecution(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return errNotFoundTest
	}
	if e.Terminal() {
		return nil
	}
	e.Status = jobstore.StatusCancelled
	return nil
}
func (s *fakeExecutions) PruneOlderThan(days int) (int, error) { return 0, nil }

type testErrNotFound string

func (e testErrNotFound) Error() string { return string(e) }

const errNotFoundTest = testErrNotFound("not found")

func TestRegistry_RegisterAndHeartbeat(t *testing.T) {
	r := New(newFakeExecutions(), 30*time.Second)

	token, err := r.Register(Agent{AgentID: "agent-1", PoolID: "default"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty auth token")
	}

	if err := r.Heartbeat("agent-1", token, HeartbeatMetrics{ActiveJobs: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agents := r.Agents()
	if len(agents) != 1 || agents[0].ActiveJobs != 2 {
		t.Errorf("unexpected agents snapshot: %+v", agents)
	}
}

func TestRegistry_HeartbeatRejectsWrongToken(t *testing.T) {
	r := New(newFakeExecutions(), 30*time.Second)
	_, err := r.Register(Agent{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.Heartbeat("agent-1", "wrong-token", HeartbeatMetrics{}); err == nil {
		t.Error("expected an error for a mismatched auth token")
	}
}

func TestRegistry_HeartbeatUnknownAgent(t *testing.T) {
	r := New(newFakeExecutions(), 30*time.Second)
	if err := r.Heartbeat("ghost", "token", HeartbeatMetrics{}); err == nil {
		t.Error("expected an error for an unregistered agent")
	}
}

func TestRegistry_RegisterRequiresAgentID(t *testing.T) {
	r := New(newFakeExecutions(), 30*time.Second)
	if _, err := r.Register(Agent{}); err == nil {
		t.Error("expected an error when agent_id is empty")
	}
}

func TestRegistry_CompleteReleasesAssignmentAndDecrementsActiveJobs(t *testing.T) {
	executions := newFakeExecutions()
	executions.put(&jobstore.Execution{ID: "exec-1", Status: jobstore.StatusAssigned})
	r := New(executions, 30*time.Second)

	token, _ := r.Register(Agent{AgentID: "agent-1", MaxParallelJobs: 2})
	_ = token
	r.mu.Lock()
	r.agents["agent-1"].ActiveJobs = 1
	r.assignments["exec-1"] = &Assignment{ID: "asg-1", ExecutionID: "exec-1", AgentID: "agent-1"}
	r.mu.Unlock()

	if err := r.Complete("exec-1", true, "done", "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := r.AssignedAgent("exec-1"); ok {
		t.Error("expected assignment to be released after completion")
	}
	agents := r.Agents()
	if agents[0].ActiveJobs != 0 {
		t.Errorf("expected active jobs decremented to 0, got %d", agents[0].ActiveJobs)
	}
	exec, _ := executions.GetExecution("exec-1")
	if exec.Status != jobstore.StatusSuccess {
		t.Errorf("expected success status recorded, got %q", exec.Status)
	}
}

func TestRegistry_StatusUpdateSetsMetadataWithoutChangingStatus(t *testing.T) {
	executions := newFakeExecutions()
	executions.put(&jobstore.Execution{ID: "exec-1", Status: jobstore.StatusAssigned})
	r := New(executions, 30*time.Second)

	if err := r.StatusUpdate("exec-1", "running_step_2", "halfway done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec, _ := executions.GetExecution("exec-1")
	if exec.Status != jobstore.StatusAssigned {
		t.Errorf("expected status unchanged, got %q", exec.Status)
	}
	if exec.Metadata["agent_state"] != "running_step_2" {
		t.Errorf("expected agent_state recorded, got %+v", exec.Metadata)
	}
}
