package file

import (
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
)

func TestStore_CreateGetRoundTripsDecryptedPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	s, err := New(path, "01234567890123456789012345678901")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := s.Create(&connstore.Connection{Name: "primary", Driver: "postgres", Password: "hunter2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get("primary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Password != "hunter2" {
		t.Errorf("expected decrypted password, got %q", got.Password)
	}
	if got.ID != id {
		t.Errorf("expected ID %q, got %q", id, got.ID)
	}
}

func TestStore_CreateRejectsDuplicateActiveName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	s, _ := New(path, "")

	if _, err := s.Create(&connstore.Connection{Name: "primary", Driver: "sqlite"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Create(&connstore.Connection{Name: "primary", Driver: "sqlite"}); err == nil {
		t.Error("expected a duplicate active connection name to be rejected")
	}
}

func TestStore_ListNeverExposesPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	s, _ := New(path, "01234567890123456789012345678901")
	s.Create(&connstore.Connection{Name: "primary", Driver: "postgres", Password: "hunter2"})

	list, err := s.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Password != "" {
		t.Errorf("expected list results with no password, got %+v", list)
	}
}

func TestStore_DeleteIsSoftAndHidesFromGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	s, _ := New(path, "")
	id, _ := s.Create(&connstore.Connection{Name: "primary", Driver: "sqlite"})

	if err := s.Delete(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get("primary"); err == nil {
		t.Error("expected Get to fail for a soft-deleted connection")
	}
	if _, err := s.GetByID(id); err != nil {
		t.Error("expected GetByID to still find the soft-deleted row")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	s1, _ := New(path, "")
	s1.Create(&connstore.Connection{Name: "primary", Driver: "sqlite", DatabaseName: "/tmp/x.db"})

	s2, err := New(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s2.Get("primary")
	if err != nil {
		t.Fatalf("expected reopened store to load persisted data: %v", err)
	}
	if got.DatabaseName != "/tmp/x.db" {
		t.Errorf("expected persisted database name, got %q", got.DatabaseName)
	}
}
