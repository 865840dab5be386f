package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ResumeStore persists the active session id across process restarts. Only
// the id is stored; the snapshot is always refetched from the server, which
// is the only copy worth trusting after a restart.
type ResumeStore interface {
	Save(sessionID string) error
	// Load returns "" when nothing is stored.
	Load() (string, error)
	Clear() error
}

// FileStore keeps the session id in a single file, written atomically via
// rename so a crash mid-write cannot leave a corrupt id behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(sessionID string) error {
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("client: resume store: %w", err)
	}
	if err := os.WriteFile(tmp, []byte(sessionID), 0o600); err != nil {
		return fmt.Errorf("client: resume store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("client: resume store: %w", err)
	}
	return nil
}

func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("client: resume store: %w", err)
	}
	return string(b), nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("client: resume store: %w", err)
	}
	return nil
}

// MemoryStore is the in-process store used by tests and throwaway sessions.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Save(sessionID string) error {
	s.mu.Lock()
	s.id = sessionID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.id = ""
	s.mu.Unlock()
	return nil
}

// Resume picks up a stored session after a restart. The authoritative
// snapshot is fetched first: only a session that still exists and is not
// over is worth reattaching to. A stale id is cleared so the next launch
// goes straight to matchmaking.
func (c *Client) Resume(ctx context.Context) (bool, error) {
	sessionID, err := c.store.Load()
	if err != nil {
		return false, err
	}
	if sessionID == "" {
		return false, nil
	}

	snap, err := c.GetSession(ctx, sessionID)
	if err != nil {
		// The engine evicts finished sessions, so "not found" here means
		// the match ended while we were away.
		c.clearResume()
		return false, nil
	}
	if snap.Status.Terminal() {
		c.clearResume()
		return false, nil
	}

	c.mu.Lock()
	c.applySnapshotLocked(snap, false)
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.attach(ctx, sessionID); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) clearResume() {
	c.mu.Lock()
	c.clearResumeLocked()
	c.mu.Unlock()
}
