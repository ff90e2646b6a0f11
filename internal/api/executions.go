package api

import (
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

func (s *Server) handleExecutionHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := jobstore.ExecutionFilter{
		JobID:  q.Get("job_id"),
		Status: q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	execs, err := s.Executions.ListExecutions(filter)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

// handleCancelExecution cancels a non-terminal execution: idempotent,
// terminates a running backend call, or revokes a queued/assigned agent
// assignment.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("execution_id")
	if err := s.Exec.Cancel(r.Context(), id); err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
