package dbconn

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the idempotent DDL for the three persisted tables: the job
// store, the execution history, and the named-connection registry.
// IF NOT EXISTS DDL is applied unconditionally, with a schema_version
// bookkeeping table recording the applied revision.
const schema = `
CREATE TABLE IF NOT EXISTS job_configurations_v2 (
	job_id             TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	description        TEXT,
	version            TEXT NOT NULL DEFAULT '2.0',
	yaml_configuration TEXT NOT NULL,
	enabled            BOOLEAN NOT NULL DEFAULT true,
	created_date       TIMESTAMPTZ NOT NULL DEFAULT now(),
	modified_date      TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by         TEXT
);

CREATE TABLE IF NOT EXISTS job_execution_history_v2 (
	execution_id       TEXT PRIMARY KEY,
	job_id             TEXT NOT NULL,
	job_name           TEXT NOT NULL,
	status             TEXT NOT NULL,
	start_time         TIMESTAMPTZ NOT NULL,
	end_time           TIMESTAMPTZ,
	duration_seconds   DOUBLE PRECISION,
	output_log         TEXT,
	error_message      TEXT,
	return_code        INTEGER NOT NULL DEFAULT 0,
	retry_count        INTEGER NOT NULL DEFAULT 0,
	max_retries        INTEGER NOT NULL DEFAULT 0,
	execution_mode     TEXT NOT NULL,
	executed_by        TEXT,
	execution_timezone TEXT,
	metadata           JSONB
);

CREATE INDEX IF NOT EXISTS idx_job_execution_history_v2_job_id ON job_execution_history_v2 (job_id);
CREATE INDEX IF NOT EXISTS idx_job_execution_history_v2_status ON job_execution_history_v2 (status);
CREATE INDEX IF NOT EXISTS idx_job_execution_history_v2_start_time ON job_execution_history_v2 (start_time DESC);

CREATE TABLE IF NOT EXISTS user_connections (
	connection_id             TEXT PRIMARY KEY,
	name                      TEXT NOT NULL,
	server_name               TEXT,
	port                      INTEGER,
	database_name             TEXT,
	trusted_connection        BOOLEAN NOT NULL DEFAULT false,
	username                  TEXT,
	password                  TEXT,
	description               TEXT,
	driver                    TEXT NOT NULL,
	connection_timeout        INTEGER NOT NULL DEFAULT 30,
	command_timeout           INTEGER NOT NULL DEFAULT 30,
	encrypt                   BOOLEAN NOT NULL DEFAULT false,
	trust_server_certificate  BOOLEAN NOT NULL DEFAULT false,
	is_active                 BOOLEAN NOT NULL DEFAULT true
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_user_connections_name_active
	ON user_connections (name) WHERE is_active;
`

// schemaVersion is bumped whenever schema changes and is recorded in
// schema_version. Migrate does not consult it: the IF NOT EXISTS DDL is
// re-applied on every boot and leaves existing tables unchanged.
const schemaVersion = 1

// Migrate applies the schema idempotently and records the applied version.
// Safe to call on every process start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT DO NOTHING`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// CurrentVersion reports the highest applied schema version, 0 if none.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}
