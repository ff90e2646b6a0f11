package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

const outboundTimeout = 10 * time.Second

// assignPayload is posted to the agent's endpoint.
type assignPayload struct {
	ExecutionID string              `json:"execution_id"`
	AgentPool   string              `json:"agent_pool"`
	Strategy    string              `json:"execution_strategy,omitempty"`
	Steps       []jobstore.Step     `json:"steps"`
	CallbackURL string              `json:"callback_url,omitempty"`
}

// Dispatch implements backend.Dispatcher.
func (r *Registry) Dispatch(ctx context.Context, executionID string, cfg *jobstore.AgentConfig) error {
	candidate := r.pickCandidate(cfg.AgentPool)
	if candidate == nil {
		return r.Executions.UpdateExecutionStatus(executionID, jobstore.StatusQueued, map[string]string{"agent_pool": cfg.AgentPool})
	}

	if err := r.postAssignment(ctx, candidate, executionID, cfg); err != nil {
		return r.Executions.UpdateExecutionStatus(executionID, jobstore.StatusQueued, map[string]string{"agent_pool": cfg.AgentPool, "last_dispatch_error": err.Error()})
	}

	r.mu.Lock()
	candidate.ActiveJobs++
	r.assignments[executionID] = &Assignment{
		ID:          jobstore.NewID("asg"),
		ExecutionID: executionID,
		AgentID:     candidate.AgentID,
		PoolID:      candidate.PoolID,
		AssignedAt:  time.Now(),
	}
	r.mu.Unlock()

	return r.Executions.UpdateExecutionStatus(executionID, jobstore.StatusAssigned, map[string]string{"agent_id": candidate.AgentID})
}

// Revoke implements executor.Canceller: for a queued or assigned execution
// it best-effort informs the agent (if one was actually assigned) that the
// assignment is cancelled, then releases the assignment and frees the
// agent's slot locally regardless of whether the agent could be reached.
// A purely queued execution (no live assignment) is a no-op here; the
// caller still marks the execution row cancelled.
func (r *Registry) Revoke(ctx context.Context, executionID string) error {
	r.mu.Lock()
	a, ok := r.assignments[executionID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	agent, agentOK := r.agents[a.AgentID]
	r.mu.Unlock()

	if agentOK {
		if err := r.postCancel(ctx, agent, executionID); err != nil {
			slog.Warn("revoke: best-effort cancel POST to agent failed", "execution_id", executionID, "agent_id", agent.AgentID, "error", err)
		}
	}

	r.mu.Lock()
	if a := r.releaseAssignmentLocked(executionID); a != nil {
		if agent, ok := r.agents[a.AgentID]; ok && agent.ActiveJobs > 0 {
			agent.ActiveJobs--
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) postCancel(ctx context.Context, a *Agent, executionID string) error {
	ctx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.EndpointURL+"/api/agent/job/"+executionID+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.AuthToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post cancel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent rejected cancel: status %d", resp.StatusCode)
	}
	return nil
}

// pickCandidate selects an online agent in the requested pool (or any pool
// if unspecified) with spare capacity, tie-broken by fewest active jobs then
// oldest last heartbeat. The time an agent was last assigned work is not
// tracked and plays no part in the choice.
func (r *Registry) pickCandidate(poolID string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*Agent
	for _, a := range r.agents {
		if a.Status != StatusOnline {
			continue
		}
		if poolID != "" && a.PoolID != poolID {
			continue
		}
		if a.ActiveJobs >= a.MaxParallelJobs {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ActiveJobs != candidates[j].ActiveJobs {
			return candidates[i].ActiveJobs < candidates[j].ActiveJobs
		}
		return candidates[i].LastHeartbeatAt.Before(candidates[j].LastHeartbeatAt)
	})
	return candidates[0]
}

func (r *Registry) postAssignment(ctx context.Context, a *Agent, executionID string, cfg *jobstore.AgentConfig) error {
	body, err := json.Marshal(assignPayload{
		ExecutionID: executionID,
		AgentPool:   cfg.AgentPool,
		Strategy:    cfg.ExecutionStrategy,
		Steps:       cfg.Steps,
	})
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.EndpointURL+"/api/agent/job/assign", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build assignment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AuthToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post assignment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent rejected assignment: status %d", resp.StatusCode)
	}
	return nil
}
