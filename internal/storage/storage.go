// Package storage persists tracking state as a JSON snapshot so extrema
// survive restarts.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tianyi-liu/premiumdiff/internal/tracking"
)

// Snapshot is the on-disk document.
type Snapshot struct {
	Tracking    tracking.State `json:"tracking"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Store reads and writes the snapshot file. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot. A missing file returns (nil, nil) so a fresh
// deployment starts clean.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically: marshal to a temp file in the target
// directory, then rename over the destination.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
