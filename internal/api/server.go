// Package api implements the HTTP API: a net/http 1.22+ pattern-based
// ServeMux exposing job, execution, agent, and connection routes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
	"github.com/nextlevelbuilder/jobrunner/internal/dispatch"
	"github.com/nextlevelbuilder/jobrunner/internal/executor"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
	"github.com/nextlevelbuilder/jobrunner/internal/scheduler"
)

const maxRequestBodyBytes = 1 << 20 // 1MB

// Server holds every component the HTTP layer needs to serve its route
// table.
type Server struct {
	Jobs        jobstore.JobStore
	Executions  jobstore.ExecutionStore
	Connections connstore.Store
	Registry    *dispatch.Registry
	Exec        *executor.Executor
	Loop        *scheduler.Loop
	APIToken    string
}

// NewRouter builds the full route table.
func NewRouter(s *Server) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/jobs", s.requireAPIToken(s.handleListJobs))
	mux.HandleFunc("POST /api/jobs", s.requireAPIToken(s.handleCreateJob))
	mux.HandleFunc("GET /api/jobs/{id}", s.requireAPIToken(s.handleGetJob))
	mux.HandleFunc("PUT /api/jobs/{id}", s.requireAPIToken(s.handleUpdateJob))
	mux.HandleFunc("DELETE /api/jobs/{id}", s.requireAPIToken(s.handleDeleteJob))
	mux.HandleFunc("POST /api/jobs/{id}/toggle", s.requireAPIToken(s.handleToggleJob))
	mux.HandleFunc("POST /api/jobs/{id}/run", s.requireAPIToken(s.handleRunJob))
	mux.HandleFunc("GET /api/jobs/{id}/logs", s.requireAPIToken(s.handleJobLogs))

	mux.HandleFunc("GET /api/executions/history", s.requireAPIToken(s.handleExecutionHistory))
	mux.HandleFunc("POST /api/executions/{execution_id}/cancel", s.requireAPIToken(s.handleCancelExecution))

	mux.HandleFunc("POST /api/agent/register", s.handleAgentRegister)
	mux.HandleFunc("POST /api/agent/heartbeat", s.handleAgentHeartbeat)
	mux.HandleFunc("POST /api/agent/jobs/{execution_id}/status", s.handleAgentStatus)
	mux.HandleFunc("POST /api/agent/jobs/{execution_id}/complete", s.handleAgentComplete)

	mux.HandleFunc("GET /api/agents", s.requireAPIToken(s.handleListAgents))

	mux.HandleFunc("GET /api/connections", s.requireAPIToken(s.handleListConnections))
	mux.HandleFunc("POST /api/connections", s.requireAPIToken(s.handleCreateConnection))
	mux.HandleFunc("GET /api/connections/{id}", s.requireAPIToken(s.handleGetConnection))
	mux.HandleFunc("PUT /api/connections/{id}", s.requireAPIToken(s.handleUpdateConnection))
	mux.HandleFunc("DELETE /api/connections/{id}", s.requireAPIToken(s.handleDeleteConnection))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
