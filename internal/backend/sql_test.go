package backend

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// fakeConnections is a minimal connstore.Store resolving a single named
// connection, for exercising SQLBackend without a real registry.
type fakeConnections struct {
	byName map[string]*connstore.Connection
}

func (f *fakeConnections) Create(c *connstore.Connection) (string, error) { return "", nil }
func (f *fakeConnections) Get(name string) (*connstore.Connection, error) {
	c, ok := f.byName[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}
func (f *fakeConnections) GetByID(id string) (*connstore.Connection, error) { return nil, sql.ErrNoRows }
func (f *fakeConnections) List() ([]*connstore.Connection, error)           { return nil, nil }
func (f *fakeConnections) Update(id string, c *connstore.Connection) error  { return nil }
func (f *fakeConnections) Delete(id string) error                          { return nil }

func newSQLiteConnection(t *testing.T, name string) *fakeConnections {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open setup db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, label TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO widgets (label) VALUES ('a'), ('b')`); err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	return &fakeConnections{byName: map[string]*connstore.Connection{
		name: {ID: "conn-1", Name: name, Driver: "sqlite", DatabaseName: dbPath},
	}}
}

func TestSQLBackend_SelectReturnsRows(t *testing.T) {
	conns := newSQLiteConnection(t, "primary")
	b := NewSQLBackend(conns)

	cfg := &jobstore.Config{Type: jobstore.TypeSQL, SQL: &jobstore.SQLConfig{Connection: "primary", Query: "SELECT id, label FROM widgets ORDER BY id"}}
	res, err := b.Execute(context.Background(), cfg, "exec-1", time.Now().Add(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Metadata["row_count"] != "2" {
		t.Errorf("expected 2 rows, got metadata %+v", res.Metadata)
	}
}

func TestSQLBackend_ExecReportsRowsAffected(t *testing.T) {
	conns := newSQLiteConnection(t, "primary")
	b := NewSQLBackend(conns)

	cfg := &jobstore.Config{Type: jobstore.TypeSQL, SQL: &jobstore.SQLConfig{Connection: "primary", Query: "UPDATE widgets SET label = 'z' WHERE id = 1"}}
	res, err := b.Execute(context.Background(), cfg, "exec-1", time.Now().Add(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Metadata["rows_affected"] != "1" {
		t.Fatalf("expected 1 row affected, got %+v", res)
	}
}

func TestSQLBackend_UnknownConnectionFailsGracefully(t *testing.T) {
	conns := newSQLiteConnection(t, "primary")
	b := NewSQLBackend(conns)

	cfg := &jobstore.Config{Type: jobstore.TypeSQL, SQL: &jobstore.SQLConfig{Connection: "does-not-exist", Query: "SELECT 1"}}
	res, err := b.Execute(context.Background(), cfg, "exec-1", time.Now().Add(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || !res.TerminalNow {
		t.Fatalf("expected a terminal failure result, got %+v", res)
	}
}

func TestSQLBackend_MissingConfigErrors(t *testing.T) {
	b := NewSQLBackend(&fakeConnections{byName: map[string]*connstore.Connection{}})
	_, err := b.Execute(context.Background(), &jobstore.Config{Type: jobstore.TypeSQL}, "exec-1", time.Now().Add(time.Second))
	if err == nil {
		t.Error("expected an error when SQL config is nil")
	}
}

func TestSQLBackend_DeadlineExceededReportsTimeout(t *testing.T) {
	conns := newSQLiteConnection(t, "primary")
	b := NewSQLBackend(conns)

	cfg := &jobstore.Config{Type: jobstore.TypeSQL, SQL: &jobstore.SQLConfig{Connection: "primary", Query: "SELECT 1"}}
	past := time.Now().Add(-time.Second)
	res, err := b.Execute(context.Background(), cfg, "exec-1", past)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.ReturnCode != TimeoutReturnCode {
		t.Fatalf("expected a timeout result for an already-past deadline, got %+v", res)
	}
}
