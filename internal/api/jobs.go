package api

import (
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/jobrunner/internal/apierr"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
	"github.com/nextlevelbuilder/jobrunner/internal/scheduler"
)

type jobResponse struct {
	*jobstore.Job
	Config *jobstore.Config   `json:"config"`
	Flat   *jobstore.FlatView `json:"flat_view"`
}

type createJobRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	YAMLConfig    string `json:"yaml_configuration"`
	CreatedBy     string `json:"created_by,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := jobstore.JobFilter{
		EnabledOnly: q.Get("enabled_only") == "true",
		JobType:     q.Get("type"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	jobs, err := s.Jobs.ListJobs(filter)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job := &jobstore.Job{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     true,
		YAMLConfig:  req.YAMLConfig,
		CreatedBy:   req.CreatedBy,
	}

	id, err := s.Jobs.CreateJob(job)
	if err != nil {
		writeAPIErr(w, err)
		return
	}

	if s.Loop != nil {
		s.Loop.Notify(scheduler.MutationEvent{JobID: id, Kind: scheduler.MutationCreated})
	}
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": id})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, cfg, flat, err := s.Jobs.GetJob(id)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{Job: job, Config: cfg, Flat: flat})
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		YAMLConfig string `json:"yaml_configuration"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.Jobs.UpdateJob(id, req.YAMLConfig); err != nil {
		writeAPIErr(w, err)
		return
	}
	if s.Loop != nil {
		s.Loop.Notify(scheduler.MutationEvent{JobID: id, Kind: scheduler.MutationUpdated})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Jobs.DeleteJob(id); err != nil {
		writeAPIErr(w, err)
		return
	}
	if s.Loop != nil {
		s.Loop.Notify(scheduler.MutationEvent{JobID: id, Kind: scheduler.MutationDeleted})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToggleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Enabled *bool `json:"enabled,omitempty"`
	}
	// Toggle accepts an empty body (flip) or {"enabled": true|false}.
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	enabled, err := s.Jobs.ToggleJob(id, req.Enabled)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if s.Loop != nil {
		s.Loop.Notify(scheduler.MutationEvent{JobID: id, Kind: scheduler.MutationToggled})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	allowOverlap := q.Get("allow_overlap") == "true"

	exec, err := s.Exec.ExecuteJob(r.Context(), id, jobstore.ModeManual, "api", allowOverlap, 0)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if exec == nil {
		writeError(w, http.StatusBadRequest, apierr.ErrForbidden.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	filter := jobstore.ExecutionFilter{JobID: id}
	if v := r.URL.Query().Get("limit"); v != "" {
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
