package mapping

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// fileState is the on-disk layout: namespace → key → value.
type fileState map[string]map[string]string

// FileStore keeps all mappings in one JSON file, rewritten atomically on every change.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// OpenFileStore loads path, starting fresh if the file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	state, err := loadState(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load mapping state: %w", err)
		}
		state = make(fileState)
	}
	return &FileStore{path: path, state: state}, nil
}

func (s *FileStore) Get(ctx context.Context, namespace, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[namespace][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(ctx context.Context, namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.state[namespace]
	if !ok {
		ns = make(map[string]string)
		s.state[namespace] = ns
	}
	prev, had := ns[key]
	ns[key] = value
	if err := s.saveState(); err != nil {
		if had {
			ns[key] = prev
		} else {
			delete(ns, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.state[namespace][key]
	if !had {
		return nil
	}
	delete(s.state[namespace], key)
	if len(s.state[namespace]) == 0 {
		delete(s.state, namespace)
	}
	if err := s.saveState(); err != nil {
		if s.state[namespace] == nil {
			s.state[namespace] = make(map[string]string)
		}
		s.state[namespace][key] = prev
		return err
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.state[namespace]))
	maps.Copy(out, s.state[namespace])
	return out, nil
}

func (s *FileStore) Close() error { return nil }

// loadState loads the mapping state from the JSON file.
func loadState(path string) (fileState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	state := make(fileState)
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// saveState writes the state to a temp file and renames it over the old one.
// Must be called with mu held.
func (s *FileStore) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write mapping state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace mapping state: %w", err)
	}
	return nil
}
