package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// Dispatcher is the slice of internal/dispatch that the Agent backend
// needs: hand a job off to a candidate agent and return immediately. The
// interface is declared here, at the point of use, so backend does not
// import dispatch; dispatch's Registry satisfies this.
type Dispatcher interface {
	Dispatch(ctx context.Context, executionID string, cfg *jobstore.AgentConfig) error
}

// AgentBackend never runs work itself, unlike the PowerShell and SQL
// backends: it hands the job to the agent dispatch registry and returns
// immediately with TerminalNow: false, letting the agent's own status
// callbacks drive the execution to a terminal state.
type AgentBackend struct {
	Dispatcher Dispatcher
}

// NewAgentBackend returns a backend delegating to the given dispatcher.
func NewAgentBackend(d Dispatcher) *AgentBackend {
	return &AgentBackend{Dispatcher: d}
}

func (b *AgentBackend) Execute(ctx context.Context, cfg *jobstore.Config, executionID string, deadline time.Time) (*Result, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("missing agent config")
	}
	if err := b.Dispatcher.Dispatch(ctx, executionID, cfg.Agent); err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("dispatch to agent pool %q: %v", cfg.Agent.AgentPool, err), TerminalNow: true}, nil
	}
	return &Result{
		Success:     true,
		Output:      fmt.Sprintf("dispatched to agent pool %q", cfg.Agent.AgentPool),
		TerminalNow: false,
	}, nil
}
