package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// DefaultSweepInterval is the default periodic sweep cadence.
const DefaultSweepInterval = 10 * time.Second

// Sweeper periodically re-attempts placement of queued agent jobs and
// reconciles stale agents/assignments via a ticker-driven tick loop.
type Sweeper struct {
	Registry *Registry
	Jobs     jobstore.JobStore
	Interval time.Duration
}

// NewSweeper constructs a Sweeper over the given registry. Jobs is used to
// re-fetch a queued execution's agent_job configuration (steps, strategy)
// before re-attempting placement.
func NewSweeper(registry *Registry, jobs jobstore.JobStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{Registry: registry, Jobs: jobs, Interval: interval}
}

// Run drives the sweep loop until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	s.markOfflineAgents()
	s.reapOrphanAssignments()
	s.retryQueued(ctx)
}

// markOfflineAgents transitions agents whose heartbeat is stale beyond 2x
// the heartbeat interval to offline.
func (s *Sweeper) markOfflineAgents() {
	threshold := 2 * s.Registry.HeartbeatInterval
	now := time.Now()

	s.Registry.mu.Lock()
	defer s.Registry.mu.Unlock()
	for _, a := range s.Registry.agents {
		if a.Status != StatusOffline && now.Sub(a.LastHeartbeatAt) > threshold {
			a.Status = StatusOffline
			slog.Warn("agent marked offline", "agent_id", a.AgentID, "stale_for", now.Sub(a.LastHeartbeatAt))
		}
	}
}

// reapOrphanAssignments fails executions whose agent has gone silent for
// more than 3x the heartbeat interval (the orphan window).
func (s *Sweeper) reapOrphanAssignments() {
	orphanWindow := 3 * s.Registry.HeartbeatInterval
	now := time.Now()

	var orphaned []string
	s.Registry.mu.Lock()
	for executionID, a := range s.Registry.assignments {
		agent, ok := s.Registry.agents[a.AgentID]
		if !ok || now.Sub(agent.LastHeartbeatAt) > orphanWindow {
			orphaned = append(orphaned, executionID)
		}
	}
	for _, executionID := range orphaned {
		if a, ok := s.Registry.assignments[executionID]; ok {
			if agent, ok := s.Registry.agents[a.AgentID]; ok && agent.ActiveJobs > 0 {
				agent.ActiveJobs--
			}
			delete(s.Registry.assignments, executionID)
		}
	}
	s.Registry.mu.Unlock()

	for _, executionID := range orphaned {
		if err := s.Registry.Executions.RecordExecutionEnd(executionID, jobstore.StatusFailed, "", "agent lost: heartbeat exceeded orphan window", 0, nil); err != nil {
			slog.Error("sweeper: failed to finalize orphaned execution", "execution_id", executionID, "error", err)
		}
	}
}

// retryQueued re-attempts placement for executions still queued.
func (s *Sweeper) retryQueued(ctx context.Context) {
	queued, err := s.Registry.Executions.ListExecutions(jobstore.ExecutionFilter{Status: jobstore.StatusQueued})
	if err != nil {
		slog.Error("sweeper: list queued executions failed", "error", err)
		return
	}
	for _, exec := range queued {
		poolID := exec.Metadata["agent_pool"]
		candidate := s.Registry.pickCandidate(poolID)
		if candidate == nil {
			continue
		}
		cfg := &jobstore.AgentConfig{AgentPool: poolID}
		if _, jobCfg, _, err := s.Jobs.GetJob(exec.JobID); err == nil && jobCfg.Agent != nil {
			cfg = jobCfg.Agent
		}
		if err := s.Registry.Dispatch(ctx, exec.ID, cfg); err != nil {
			slog.Warn("sweeper: re-dispatch failed", "execution_id", exec.ID, "error", err)
		}
	}
}
