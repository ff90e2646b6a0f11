// Package file implements connstore.Store backed by a single JSON file,
// using the same load/save idiom as internal/jobstore/file.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
	"github.com/nextlevelbuilder/jobrunner/internal/crypto"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// Store is a JSON-file-backed connstore.Store. Passwords are encrypted at
// rest with the AES-256-GCM helper in internal/crypto.
type Store struct {
	path          string
	encryptionKey string
	mu            sync.Mutex
	conns         map[string]*connstore.Connection
}

// New opens (or initializes) the connection-registry file store.
func New(path, encryptionKey string) (*Store, error) {
	s := &Store{path: path, encryptionKey: encryptionKey, conns: make(map[string]*connstore.Connection)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read connections store: %w", err)
	}
	if err := json.Unmarshal(raw, &s.conns); err != nil {
		return nil, fmt.Errorf("parse connections store: %w", err)
	}
	return s, nil
}

func (s *Store) saveUnsafe() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s.conns, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

// Create implements connstore.Store.
func (s *Store) Create(c *connstore.Connection) (string, error) {
	enc, err := crypto.Encrypt(c.Password, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.conns {
		if existing.Name == c.Name && existing.IsActive {
			return "", fmt.Errorf("connection name %q already in use", c.Name)
		}
	}

	c.ID = jobstore.NewID("conn")
	c.Password = enc
	c.IsActive = true
	s.conns[c.ID] = c
	if err := s.saveUnsafe(); err != nil {
		return "", err
	}
	return c.ID, nil
}

// Get implements connstore.Store, resolving by name with decrypted password.
func (s *Store) Get(name string) (*connstore.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conns {
		if c.Name == name && c.IsActive {
			return s.decrypted(c)
		}
	}
	return nil, fmt.Errorf("connection %q not found or inactive", name)
}

// GetByID implements connstore.Store.
func (s *Store) GetByID(id string) (*connstore.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return nil, fmt.Errorf("connection %q not found", id)
	}
	return s.decrypted(c)
}

func (s *Store) decrypted(c *connstore.Connection) (*connstore.Connection, error) {
	out := *c
	plain, err := crypto.Decrypt(c.Password, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt password: %w", err)
	}
	out.Password = plain
	return &out, nil
}

// List implements connstore.Store. Passwords are never decrypted for list
// views: they are returned in plaintext only from direct resolution for
// execution.
func (s *Store) List() ([]*connstore.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*connstore.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		redacted := *c
		redacted.Password = ""
		out = append(out, &redacted)
	}
	return out, nil
}

// Update implements connstore.Store.
func (s *Store) Update(id string, c *connstore.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[id]; !ok {
		return fmt.Errorf("connection %q not found", id)
	}
	if c.Password != "" {
		enc, err := crypto.Encrypt(c.Password, s.encryptionKey)
		if err != nil {
			return fmt.Errorf("encrypt password: %w", err)
		}
		c.Password = enc
	} else {
		c.Password = s.conns[id].Password
	}
	c.ID = id
	s.conns[id] = c
	return s.saveUnsafe()
}

// Delete implements connstore.Store via a soft-delete: is_active is cleared
// rather than removing the row. GetByID still returns the row; Get by name
// no longer resolves it.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return fmt.Errorf("connection %q not found", id)
	}
	c.IsActive = false
	return s.saveUnsafe()
}
