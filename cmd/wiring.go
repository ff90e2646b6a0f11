package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/nextlevelbuilder/jobrunner/internal/api"
	"github.com/nextlevelbuilder/jobrunner/internal/appconfig"
	"github.com/nextlevelbuilder/jobrunner/internal/backend"
	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
	connstorefile "github.com/nextlevelbuilder/jobrunner/internal/connstore/file"
	connstorepg "github.com/nextlevelbuilder/jobrunner/internal/connstore/pg"
	"github.com/nextlevelbuilder/jobrunner/internal/dbconn"
	"github.com/nextlevelbuilder/jobrunner/internal/dispatch"
	"github.com/nextlevelbuilder/jobrunner/internal/executor"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
	jobstorefile "github.com/nextlevelbuilder/jobrunner/internal/jobstore/file"
	jobstorepg "github.com/nextlevelbuilder/jobrunner/internal/jobstore/pg"
	"github.com/nextlevelbuilder/jobrunner/internal/scheduler"
)

// app holds every wired component a command needs, built once from
// appconfig.Config by buildApp: the store backend, the execution backends,
// the agent registry, the executor, and the scheduler loop.
type app struct {
	cfg *appconfig.Config

	db          *sql.DB
	jobs        jobstore.JobStore
	executions  jobstore.ExecutionStore
	connections connstore.Store
	registry    *dispatch.Registry
	exec        *executor.Executor
	pool        *scheduler.WorkerPool
	loop        *scheduler.Loop
}

// buildApp wires the store backend selected by cfg.StoreBackend, the three
// execution backends, the executor core, the scheduler loop, and the agent
// dispatch registry.
func buildApp(ctx context.Context, cfg *appconfig.Config) (*app, error) {
	a := &app{cfg: cfg}

	switch cfg.StoreBackend {
	case appconfig.BackendPostgres:
		db, err := dbconn.Open(cfg.DSN(), dbconn.PoolConfig{MaxOpenConns: cfg.DBMaxOpenConns, MaxIdleConns: cfg.DBMaxIdleConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := dbconn.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		a.db = db
		store := jobstorepg.New(db)
		a.jobs, a.executions = store, store
		a.connections = connstorepg.New(db, cfg.ConnectionEncryptionKey)
	case appconfig.BackendFile:
		store, err := jobstorefile.New(filepath.Join(cfg.DataDir, "jobs.json"))
		if err != nil {
			return nil, fmt.Errorf("open job store: %w", err)
		}
		a.jobs, a.executions = store, store
		conns, err := connstorefile.New(filepath.Join(cfg.DataDir, "connections.json"), cfg.ConnectionEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("open connection store: %w", err)
		}
		a.connections = conns
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	a.registry = dispatch.New(a.executions, cfg.HeartbeatInterval)

	backends := map[string]backend.Backend{
		jobstore.TypePowerShell: backend.NewPowerShellBackend(),
		jobstore.TypeSQL:        backend.NewSQLBackend(a.connections),
		jobstore.TypeAgentJob:   backend.NewAgentBackend(a.registry),
	}

	a.pool = scheduler.NewWorkerPool(cfg.WorkerPoolSize)
	a.exec = executor.New(a.jobs, a.executions, backends, nil)
	a.exec.AgentCanceller = a.registry
	a.loop = scheduler.New(a.jobs, a.exec, a.pool, cfg.MisfireGrace)
	a.exec.Reschedule = a.loop

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) router() *api.Server {
	return &api.Server{
		Jobs:        a.jobs,
		Executions:  a.executions,
		Connections: a.connections,
		Registry:    a.registry,
		Exec:        a.exec,
		Loop:        a.loop,
		APIToken:    a.cfg.APIToken,
	}
}
