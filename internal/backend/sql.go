package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// SQLBackend runs a query against a named connection. It resolves the
// connection through connstore and opens (or reuses) a *sql.DB per
// driver+DSN pair.
type SQLBackend struct {
	Connections connstore.Store

	mu    chan struct{} // 1-buffered mutex, avoids importing sync for a single critical section
	pools map[string]*sql.DB
}

// NewSQLBackend constructs a backend over the given connection registry.
func NewSQLBackend(connections connstore.Store) *SQLBackend {
	b := &SQLBackend{Connections: connections, pools: make(map[string]*sql.DB)}
	b.mu = make(chan struct{}, 1)
	b.mu <- struct{}{}
	return b
}

func (b *SQLBackend) pool(c *connstore.Connection) (*sql.DB, error) {
	dsn, err := connstore.BuildDSN(c)
	if err != nil {
		return nil, err
	}
	key := c.Driver + "|" + dsn

	<-b.mu
	defer func() { b.mu <- struct{}{} }()

	if db, ok := b.pools[key]; ok {
		return db, nil
	}
	driverName := c.Driver
	switch driverName {
	case "postgres":
		driverName = "pgx"
	case "sqlite":
		driverName = "sqlite3"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", c.Driver, err)
	}
	b.pools[key] = db
	return db, nil
}

func (b *SQLBackend) Execute(ctx context.Context, cfg *jobstore.Config, executionID string, deadline time.Time) (*Result, error) {
	if cfg.SQL == nil {
		return nil, fmt.Errorf("missing sql config")
	}

	conn, err := b.Connections.Get(cfg.SQL.Connection)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("resolve connection %q: %v", cfg.SQL.Connection, err), TerminalNow: true}, nil
	}

	db, err := b.pool(conn)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), TerminalNow: true}, nil
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	query := strings.TrimSpace(cfg.SQL.Query)
	maxRows := cfg.SQL.MaxRows
	if maxRows <= 0 {
		maxRows = 1000
	}

	isSelect := strings.HasPrefix(strings.ToUpper(query), "SELECT")
	if isSelect {
		return b.runSelect(ctx, db, query, maxRows)
	}
	return b.runExec(ctx, db, query)
}

func (b *SQLBackend) runSelect(ctx context.Context, db *sql.DB, query string, maxRows int) (*Result, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Result{Success: false, Error: "query exceeded deadline", ReturnCode: TimeoutReturnCode, TerminalNow: true}, nil
		}
		return &Result{Success: false, Error: err.Error(), TerminalNow: true}, nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return &Result{Success: false, Error: err.Error(), TerminalNow: true}, nil
	}

	var out []map[string]any
	for rows.Next() && len(out) < maxRows {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &Result{Success: false, Error: err.Error(), TerminalNow: true}, nil
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return &Result{Success: false, Error: err.Error(), TerminalNow: true}, nil
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), TerminalNow: true}, nil
	}

	return &Result{
		Success:     true,
		Output:      string(encoded),
		ReturnCode:  0,
		TerminalNow: true,
		Metadata:    map[string]string{"row_count": fmt.Sprintf("%d", len(out))},
	}, nil
}

func (b *SQLBackend) runExec(ctx context.Context, db *sql.DB, query string) (*Result, error) {
	res, err := db.ExecContext(ctx, query)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Result{Success: false, Error: "statement exceeded deadline", ReturnCode: TimeoutReturnCode, TerminalNow: true}, nil
		}
		return &Result{Success: false, Error: err.Error(), TerminalNow: true}, nil
	}
	n, _ := res.RowsAffected()
	return &Result{
		Success:     true,
		Output:      fmt.Sprintf("%d row(s) affected", n),
		ReturnCode:  0,
		TerminalNow: true,
		Metadata:    map[string]string{"rows_affected": fmt.Sprintf("%d", n)},
	}, nil
}
