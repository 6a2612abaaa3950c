// internal/state/processed.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ProcessedStore is a JSON-file-backed append-only set of notification ids
// that have already produced a reply. Each id maps to the time it was marked,
// which is informational only; membership is what matters.
type ProcessedStore struct {
	path string
	mu   sync.RWMutex
}

// NewProcessedStore creates a file-backed ProcessedStore at the given path.
func NewProcessedStore(path string) *ProcessedStore {
	return &ProcessedStore{path: path}
}

// Has reports whether the notification id was already processed.
func (s *ProcessedStore) Has(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := set[id]
	return ok, nil
}

// Mark records the notification id as processed. Marking an id twice is a
// no-op, not an error.
func (s *ProcessedStore) Mark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load()
	if err != nil {
		return err
	}
	if set == nil {
		set = make(map[string]time.Time)
	}
	if _, ok := set[id]; ok {
		return nil
	}
	set[id] = time.Now().UTC()
	return s.save(set)
}

func (s *ProcessedStore) load() (map[string]time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read processed file: %w", err)
	}

	var set map[string]time.Time
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshal processed set: %w", err)
	}
	return set, nil
}

func (s *ProcessedStore) save(set map[string]time.Time) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal processed set: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write processed file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename processed file: %w", err)
	}
	return nil
}
