package dispatch

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

func TestSweeper_MarksStaleAgentOffline(t *testing.T) {
	r := New(newFakeExecutions(), 10*time.Second)
	r.mu.Lock()
	r.agents["agent-1"] = &Agent{AgentID: "agent-1", Status: StatusOnline, LastHeartbeatAt: time.Now().Add(-1 * time.Minute)}
	r.mu.Unlock()

	s := NewSweeper(r, nil, time.Second)
	s.markOfflineAgents()

	agents := r.Agents()
	if agents[0].Status != StatusOffline {
		t.Errorf("expected stale agent marked offline, got %q", agents[0].Status)
	}
}

func TestSweeper_RecentAgentStaysOnline(t *testing.T) {
	r := New(newFakeExecutions(), 10*time.Second)
	r.mu.Lock()
	r.agents["agent-1"] = &Agent{AgentID: "agent-1", Status: StatusOnline, LastHeartbeatAt: time.Now()}
	r.mu.Unlock()

	s := NewSweeper(r, nil, time.Second)
	s.markOfflineAgents()

	agents := r.Agents()
	if agents[0].Status != StatusOnline {
		t.Errorf("expected recent agent to stay online, got %q", agents[0].Status)
	}
}

func TestSweeper_ReapsOrphanAssignmentPastThreeXWindow(t *testing.T) {
	executions := newFakeExecutions()
	executions.put(&jobstore.Execution{ID: "exec-1", Status: jobstore.StatusAssigned})
	r := New(executions, 10*time.Second)
	r.mu.Lock()
	r.agents["agent-1"] = &Agent{AgentID: "agent-1", Status: StatusOffline, ActiveJobs: 1, LastHeartbeatAt: time.Now().Add(-31 * time.Second)}
	r.assignments["exec-1"] = &Assignment{ID: "asg-1", ExecutionID: "exec-1", AgentID: "agent-1"}
	r.mu.Unlock()

	s := NewSweeper(r, nil, time.Second)
	s.reapOrphanAssignments()

	if _, ok := r.AssignedAgent("exec-1"); ok {
		t.Error("expected orphaned assignment to be released")
	}
	exec, _ := executions.GetExecution("exec-1")
	if exec.Status != jobstore.StatusFailed {
		t.Errorf("expected orphaned execution marked failed, got %q", exec.Status)
	}
}

func TestSweeper_DoesNotReapWithinOrphanWindow(t *testing.T) {
	executions := newFakeExecutions()
	executions.put(&jobstore.Execution{ID: "exec-1", Status: jobstore.StatusAssigned})
	r := New(executions, 10*time.Second)
	r.mu.Lock()
	r.agents["agent-1"] = &Agent{AgentID: "agent-1", Status: StatusOnline, LastHeartbeatAt: time.Now()}
	r.assignments["exec-1"] = &Assignment{ID: "asg-1", ExecutionID: "exec-1", AgentID: "agent-1"}
	r.mu.Unlock()

	s := NewSweeper(r, nil, time.Second)
	s.reapOrphanAssignments()

	if _, ok := r.AssignedAgent("exec-1"); !ok {
		t.Error("expected a fresh assignment to survive the sweep")
	}
}
