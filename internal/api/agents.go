package api

import (
	"net/http"

	"github.com/nextlevelbuilder/jobrunner/internal/dispatch"
)

type registerRequest struct {
	AgentID         string   `json:"agent_id"`
	PoolID          string   `json:"pool_id"`
	EndpointURL     string   `json:"endpoint_url"`
	Capabilities    []string `json:"capabilities,omitempty"`
	MaxParallelJobs int      `json:"max_parallel_jobs"`
	OS              string   `json:"os,omitempty"`
	CPUCount        int      `json:"cpu_count,omitempty"`
	MemoryMB        int      `json:"memory_mb,omitempty"`
	FreeDiskMB      int      `json:"free_disk_mb,omitempty"`
}

func (s *Server) handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := s.Registry.Register(dispatch.Agent{
		AgentID:         req.AgentID,
		PoolID:          req.PoolID,
		EndpointURL:     req.EndpointURL,
		Capabilities:    req.Capabilities,
		MaxParallelJobs: req.MaxParallelJobs,
		OS:              req.OS,
		CPUCount:        req.CPUCount,
		MemoryMB:        req.MemoryMB,
		FreeDiskMB:      req.FreeDiskMB,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_token": token})
}

type heartbeatRequest struct {
	AgentID    string  `json:"agent_id"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	MemoryMB   int     `json:"memory_mb,omitempty"`
	FreeDiskMB int     `json:"free_disk_mb,omitempty"`
	ActiveJobs int     `json:"active_jobs,omitempty"`
}

func (s *Server) handleAgentHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := extractBearerToken(r)
	if err := s.Registry.Heartbeat(req.AgentID, token, dispatch.HeartbeatMetrics{
		CPUPercent: req.CPUPercent,
		MemoryMB:   req.MemoryMB,
		FreeDiskMB: req.FreeDiskMB,
		ActiveJobs: req.ActiveJobs,
	}); err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")

	agentID, ok := s.Registry.AssignedAgent(executionID)
	if !ok || !s.requireAgentToken(agentID, extractBearerToken(r)) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		State   string `json:"state"`
		Message string `json:"message,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.Registry.StatusUpdate(executionID, req.State, req.Message); err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgentComplete(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")

	agentID, ok := s.Registry.AssignedAgent(executionID)
	if !ok || !s.requireAgentToken(agentID, extractBearerToken(r)) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Success bool              `json:"success"`
		Output  string            `json:"output,omitempty"`
		Error   string            `json:"error,omitempty"`
		Logs    map[string]string `json:"logs,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.Registry.Complete(executionID, req.Success, req.Output, req.Error, req.Logs); err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.Agents())
}
