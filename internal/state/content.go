// internal/state/content.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/mastopilot/internal/types"
)

// ContentStore is a JSON-file-backed log of published content, newest last
// on disk. It exists for status reporting and auditing; the dedup decision
// never reads it.
type ContentStore struct {
	path string
	mu   sync.RWMutex
}

// NewContentStore creates a file-backed ContentStore at the given path.
func NewContentStore(path string) *ContentStore {
	return &ContentStore{path: path}
}

// Append adds one content record to the log.
func (s *ContentStore) Append(content *types.GeneratedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return err
	}
	contents = append(contents, content)
	return s.save(contents)
}

// Recent returns up to limit records, newest first.
func (s *ContentStore) Recent(limit int) ([]*types.GeneratedContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contents, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]*types.GeneratedContent, 0, limit)
	for i := len(contents) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, contents[i])
	}
	return out, nil
}

func (s *ContentStore) load() ([]*types.GeneratedContent, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read contents file: %w", err)
	}

	var contents []*types.GeneratedContent
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("unmarshal contents: %w", err)
	}
	return contents, nil
}

func (s *ContentStore) save(contents []*types.GeneratedContent) error {
	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal contents: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write contents file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename contents file: %w", err)
	}
	return nil
}
