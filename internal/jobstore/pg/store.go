// Package pg implements jobstore.Store backed by Postgres: parameterized
// Create/Get/Update/List queries, with metadata scanned through a nullable
// JSONB-via-*[]byte pattern.
package pg

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/apierr"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// Store is a Postgres-backed jobstore.Store.
type Store struct {
	db *sql.DB
}

// New wraps an already-open, already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobSelectCols = `job_id, name, description, version, yaml_configuration, enabled, created_date, modified_date, created_by`

func scanJob(row interface{ Scan(...any) error }) (*jobstore.Job, error) {
	var j jobstore.Job
	var desc, createdBy sql.NullString
	if err := row.Scan(&j.ID, &j.Name, &desc, &j.Version, &j.YAMLConfig, &j.Enabled, &j.CreatedAt, &j.ModifiedAt, &createdBy); err != nil {
		return nil, err
	}
	j.Description = desc.String
	j.CreatedBy = createdBy.String
	return &j, nil
}

// CreateJob implements jobstore.JobStore.
func (s *Store) CreateJob(job *jobstore.Job) (string, error) {
	if err := jobstore.ValidateJobName(job.Name); err != nil {
		return "", err
	}
	_, cfg := jobstore.ParseYAML(job.YAMLConfig)
	if err := jobstore.ValidateConfig(cfg); err != nil {
		return "", err
	}

	job.ID = jobstore.NewID("job")
	job.Version = "2.0"
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO job_configurations_v2 (job_id, name, description, version, yaml_configuration, enabled, created_date, modified_date, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Name, job.Description, job.Version, job.YAMLConfig, job.Enabled, now, now, job.CreatedBy,
	)
	if err != nil {
		return "", apierr.Wrap(apierr.ErrStorage, "insert job: "+err.Error())
	}
	job.CreatedAt, job.ModifiedAt = now, now
	return job.ID, nil
}

// GetJob implements jobstore.JobStore.
func (s *Store) GetJob(jobID string) (*jobstore.Job, *jobstore.Config, *jobstore.FlatView, error) {
	row := s.db.QueryRow(`SELECT `+jobSelectCols+` FROM job_configurations_v2 WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil, nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, apierr.Wrap(apierr.ErrStorage, "scan job: "+err.Error())
	}
	_, cfg := jobstore.ParseYAML(job.YAMLConfig)
	fv := jobstore.Flatten(cfg)
	return job, cfg, &fv, nil
}

// ListJobs implements jobstore.JobStore. The job-type filter operates on the
// parsed YAML, so it is applied in Go after a plain SQL scan rather
// than pushed into the WHERE clause.
func (s *Store) ListJobs(filter jobstore.JobFilter) ([]*jobstore.Job, error) {
	query := `SELECT ` + jobSelectCols + ` FROM job_configurations_v2`
	args := []any{}
	if filter.EnabledOnly {
		query += ` WHERE enabled = true`
	}
	query += ` ORDER BY created_date DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrStorage, "list jobs: "+err.Error())
	}
	defer rows.Close()

	var out []*jobstore.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.ErrStorage, "scan job: "+err.Error())
		}
		if filter.JobType != "" {
			_, cfg := jobstore.ParseYAML(job.YAMLConfig)
			if cfg.Type != filter.JobType {
				continue
			}
		}
		out = append(out, job)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, rows.Err()
}

// UpdateJob implements jobstore.JobStore.
func (s *Store) UpdateJob(jobID string, yamlBlob string) error {
	name, cfg := jobstore.ParseYAML(yamlBlob)
	if err := jobstore.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := jobstore.ValidateJobName(name); err != nil {
		return err
	}

	res, err := s.db.Exec(
		`UPDATE job_configurations_v2 SET name = $1, yaml_configuration = $2, modified_date = $3 WHERE job_id = $4`,
		name, yamlBlob, time.Now().UTC(), jobID,
	)
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "update job: "+err.Error())
	}
	return mustAffectedOne(res)
}

// DeleteJob implements jobstore.JobStore.
func (s *Store) DeleteJob(jobID string) error {
	res, err := s.db.Exec(`DELETE FROM job_configurations_v2 WHERE job_id = $1`, jobID)
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "delete job: "+err.Error())
	}
	return mustAffectedOne(res)
}

// ToggleJob implements jobstore.JobStore.
func (s *Store) ToggleJob(jobID string, enabled *bool) (bool, error) {
	if enabled != nil {
		res, err := s.db.Exec(`UPDATE job_configurations_v2 SET enabled = $1, modified_date = $2 WHERE job_id = $3`,
			*enabled, time.Now().UTC(), jobID)
		if err != nil {
			return false, apierr.Wrap(apierr.ErrStorage, "toggle job: "+err.Error())
		}
		if err := mustAffectedOne(res); err != nil {
			return false, err
		}
		return *enabled, nil
	}

	var cur bool
	if err := s.db.QueryRow(`SELECT enabled FROM job_configurations_v2 WHERE job_id = $1`, jobID).Scan(&cur); err != nil {
		if err == sql.ErrNoRows {
			return false, apierr.ErrNotFound
		}
		return false, apierr.Wrap(apierr.ErrStorage, "read job: "+err.Error())
	}
	next := !cur
	if _, err := s.db.Exec(`UPDATE job_configurations_v2 SET enabled = $1, modified_date = $2 WHERE job_id = $3`,
		next, time.Now().UTC(), jobID); err != nil {
		return false, apierr.Wrap(apierr.ErrStorage, "toggle job: "+err.Error())
	}
	return next, nil
}

func mustAffectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "rows affected: "+err.Error())
	}
	if n == 0 {
		return apierr.ErrNotFound
	}
	return nil
}

// RecordExecutionStart implements jobstore.ExecutionStore.
func (s *Store) RecordExecutionStart(jobID, jobName, mode, executedBy, tz string, retryCount int) (string, error) {
	id := jobstore.NewID("exec")
	_, err := s.db.Exec(
		`INSERT INTO job_execution_history_v2 (execution_id, job_id, job_name, status, start_time, execution_mode, executed_by, execution_timezone, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, jobID, jobName, jobstore.StatusRunning, time.Now().UTC(), mode, executedBy, tz, retryCount,
	)
	if err != nil {
		return "", apierr.Wrap(apierr.ErrStorage, "insert execution: "+err.Error())
	}
	return id, nil
}

// RecordExecutionEnd implements jobstore.ExecutionStore. First-writer-wins
// on terminal state, enforced by the WHERE clause excluding already-
// terminal statuses.
func (s *Store) RecordExecutionEnd(executionID, status, output, errMsg string, returnCode int, metadata map[string]string) error {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "marshal metadata: "+err.Error())
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE job_execution_history_v2
		 SET status = $1, end_time = $2, duration_seconds = EXTRACT(EPOCH FROM ($2 - start_time)),
		     output_log = $3, error_message = $4, return_code = $5, metadata = COALESCE($6, metadata)
		 WHERE execution_id = $7 AND status NOT IN ('success','failed','timeout','cancelled')`,
		status, now, output, errMsg, returnCode, metaJSON, executionID,
	)
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "finalize execution: "+err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "rows affected: "+err.Error())
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRow(`SELECT true FROM job_execution_history_v2 WHERE execution_id = $1`, executionID).Scan(&exists); err == sql.ErrNoRows {
			return apierr.ErrNotFound
		}
		return apierr.ErrAlreadyTerminal
	}
	return nil
}

// GetExecution implements jobstore.ExecutionStore.
func (s *Store) GetExecution(executionID string) (*jobstore.Execution, error) {
	row := s.db.QueryRow(executionSelectQuery+` WHERE execution_id = $1`, executionID)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrStorage, "scan execution: "+err.Error())
	}
	return e, nil
}

// ListExecutions implements jobstore.ExecutionStore.
func (s *Store) ListExecutions(filter jobstore.ExecutionFilter) ([]*jobstore.Execution, error) {
	query := executionSelectQuery
	var args []any
	var conds []string
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		conds = append(conds, "job_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrStorage, "list executions: "+err.Error())
	}
	defer rows.Close()

	var out []*jobstore.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.ErrStorage, "scan execution: "+err.Error())
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateExecutionStatus implements jobstore.ExecutionStore.
func (s *Store) UpdateExecutionStatus(executionID, status string, metadata map[string]string) error {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "marshal metadata: "+err.Error())
	}
	res, err := s.db.Exec(
		`UPDATE job_execution_history_v2 SET status = $1, metadata = COALESCE($2, metadata)
		 WHERE execution_id = $3 AND status NOT IN ('success','failed','timeout','cancelled')`,
		status, metaJSON, executionID,
	)
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "update execution status: "+err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.ErrAlreadyTerminal
	}
	return nil
}

// CancelExecution implements jobstore.ExecutionStore. Idempotent: the WHERE
// clause excludes rows already terminal, so a second call is a silent
// no-op rather than already_terminal.
func (s *Store) CancelExecution(executionID string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE job_execution_history_v2
		 SET status = $1, end_time = $2, duration_seconds = EXTRACT(EPOCH FROM ($2 - start_time)),
		     error_message = COALESCE(NULLIF(error_message, ''), 'cancelled by request')
		 WHERE execution_id = $3 AND status NOT IN ('success','failed','timeout','cancelled')`,
		jobstore.StatusCancelled, now, executionID,
	)
	if err != nil {
		return apierr.Wrap(apierr.ErrStorage, "cancel execution: "+err.Error())
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := s.db.QueryRow(`SELECT true FROM job_execution_history_v2 WHERE execution_id = $1`, executionID).Scan(&exists); err == sql.ErrNoRows {
			return apierr.ErrNotFound
		}
	}
	return nil
}

// PruneOlderThan implements jobstore.ExecutionStore.
func (s *Store) PruneOlderThan(days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(
		`DELETE FROM job_execution_history_v2 WHERE start_time < $1 AND status IN ('success','failed','timeout','cancelled')`,
		time.Now().UTC().AddDate(0, 0, -days),
	)
	if err != nil {
		return 0, apierr.Wrap(apierr.ErrStorage, "prune executions: "+err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const executionSelectQuery = `SELECT execution_id, job_id, job_name, status, start_time, end_time, duration_seconds,
	output_log, error_message, return_code, retry_count, max_retries, execution_mode, executed_by, execution_timezone, metadata
	FROM job_execution_history_v2`

func scanExecution(row interface{ Scan(...any) error }) (*jobstore.Execution, error) {
	var e jobstore.Execution
	var endTime sql.NullTime
	var duration sql.NullFloat64
	var output, errMsg, executedBy, tz sql.NullString
	var metaRaw []byte

	if err := row.Scan(&e.ID, &e.JobID, &e.JobName, &e.Status, &e.StartTime, &endTime, &duration,
		&output, &errMsg, &e.ReturnCode, &e.RetryCount, &e.MaxRetries, &e.ExecutionMode, &executedBy, &tz, &metaRaw); err != nil {
		return nil, err
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	if duration.Valid {
		e.DurationSeconds = &duration.Float64
	}
	e.Output = output.String
	e.ErrorMessage = errMsg.String
	e.ExecutedBy = executedBy.String
	e.ExecutionTimezone = tz.String
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &e.Metadata)
	}
	return &e, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

