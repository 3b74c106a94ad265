package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

// Store keeps controller snapshots as attribute maps in a single JSON file,
// keyed by controller name.
type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) readAll() (map[string]map[string]string, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	all := map[string]map[string]string{}
	if err := json.NewDecoder(file).Decode(&all); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return all, nil
}

func (s *Store) Load(_ context.Context, controller string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	attrs, ok := all[controller]
	if !ok {
		return nil, nil
	}
	snap := model.SnapshotFromAttributes(attrs)
	return &snap, nil
}

func (s *Store) Save(_ context.Context, controller string, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[controller] = snap.Attributes()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(all); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}
