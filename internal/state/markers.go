// internal/state/markers.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MarkerStore is a JSON-file-backed mapping of document id to the last
// processed version marker. It is the durable source of truth for "which
// document version has already produced a post".
type MarkerStore struct {
	path string
	mu   sync.RWMutex
}

// NewMarkerStore creates a file-backed MarkerStore at the given file path.
func NewMarkerStore(path string) *MarkerStore {
	return &MarkerStore{path: path}
}

// Marker returns the stored marker for a document and whether one exists.
func (s *MarkerStore) Marker(documentID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markers, err := s.load()
	if err != nil {
		return "", false, err
	}
	marker, ok := markers[documentID]
	return marker, ok, nil
}

// SetMarker records the last processed marker for a document.
func (s *MarkerStore) SetMarker(documentID, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	markers, err := s.load()
	if err != nil {
		return err
	}
	if markers == nil {
		markers = make(map[string]string)
	}
	markers[documentID] = marker
	return s.save(markers)
}

// load reads the JSON file. Returns nil if the file doesn't exist.
func (s *MarkerStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read markers file: %w", err)
	}

	var markers map[string]string
	if err := json.Unmarshal(data, &markers); err != nil {
		return nil, fmt.Errorf("unmarshal markers: %w", err)
	}
	return markers, nil
}

// save writes the marker map to disk using atomic write (temp file + rename).
func (s *MarkerStore) save(markers map[string]string) error {
	data, err := json.MarshalIndent(markers, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal markers: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write markers file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename markers file: %w", err)
	}
	return nil
}
