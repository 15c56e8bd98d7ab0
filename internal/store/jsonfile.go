package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// JSONFileStore keeps every override in a single JSON document:
//
//	{"<experimentId>": {"variations": {"<key>": {...}}, "updatedAt": ..., "fileName": ...}}
//
// Writes go to a temp file in the same directory and are renamed over the
// target, so readers never observe a partial file.
type JSONFileStore struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

func OpenJSONFile(path string) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s := &JSONFileStore{path: path, now: time.Now}
	// surface a corrupt file at open time rather than on the first request
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONFileStore) load() (map[string]*ExperimentOverride, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*ExperimentOverride{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	all := map[string]*ExperimentOverride{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to decode overrides %s: %w", s.path, err)
	}
	for _, o := range all {
		if o != nil && o.Variations == nil {
			o.Variations = map[string]VariationOverride{}
		}
	}
	return all, nil
}

func (s *JSONFileStore) save(all map[string]*ExperimentOverride) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode overrides: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".overrides-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write overrides: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write overrides: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace overrides: %w", err)
	}
	return nil
}

func (s *JSONFileStore) Get(ctx context.Context, experimentID string) (*ExperimentOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	o, ok := all[experimentID]
	if !ok || o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *JSONFileStore) Snapshot(ctx context.Context) (Overlay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	return Overlay(all), nil
}

func (s *JSONFileStore) Merge(ctx context.Context, experimentID, fileName string, rows map[string]VariationOverride) (*ExperimentOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}

	merged := mergeRows(all[experimentID], rows)
	merged.FileName = fileName
	merged.UpdatedAt = s.now().UTC()
	all[experimentID] = merged

	if err := s.save(all); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *JSONFileStore) Delete(ctx context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[experimentID]; !ok {
		return ErrNotFound
	}
	delete(all, experimentID)
	return s.save(all)
}

func (s *JSONFileStore) Close() error { return nil }
