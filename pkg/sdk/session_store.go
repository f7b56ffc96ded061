package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/celerix-dev/celerix-contacts/internal/vault"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

// SessionStore persists the signed-in session between runs.
type SessionStore interface {
	// Load returns the stored session, or nil when there is none.
	Load() (*schema.Session, error)
	Save(s schema.Session) error
	Clear() error
}

// MemorySessionStore keeps the session for the lifetime of the process only.
type MemorySessionStore struct {
	mu sync.Mutex
	s  *schema.Session
}

func (m *MemorySessionStore) Load() (*schema.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemorySessionStore) Save(s schema.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = &s
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// FileSessionStore keeps the session in a file sealed with a local key.
type FileSessionStore struct {
	path string
	key  []byte
}

// NewFileSessionStore stores the session at path, sealed with a key derived from keyFile.
// The key file is created on first use.
func NewFileSessionStore(path, keyFile string) (*FileSessionStore, error) {
	key, err := vault.LoadOrCreateKey(keyFile, "session")
	if err != nil {
		return nil, fmt.Errorf("sdk: loading session key: %w", err)
	}
	return &FileSessionStore{path: path, key: key}, nil
}

// Path returns the session file location.
func (f *FileSessionStore) Path() string {
	return f.path
}

// Load returns nil without error when no session file exists or it cannot be opened
// with the current key; a stale session is the same as no session.
func (f *FileSessionStore) Load() (*schema.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sdk: reading session: %w", err)
	}
	plain, err := vault.Open(string(data), f.key)
	if err != nil {
		return nil, nil
	}
	var s schema.Session
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, nil
	}
	return &s, nil
}

func (f *FileSessionStore) Save(s schema.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	sealed, err := vault.Seal(data, f.key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("sdk: creating session dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("sdk: writing session: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileSessionStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sdk: removing session: %w", err)
	}
	return nil
}
