package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps state in a single JSON file. It suits the ad hoc
// single-host workflows the CLI started from.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileState struct {
	Values map[string]json.RawMessage `json:"values"`
	Seen   map[string]time.Time       `json:"seen"`
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is required")
	}
	return &FileStore{path: path}, nil
}

// Put stores value as JSON under key.
func (s *FileStore) Put(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	state.Values[key] = encoded
	return s.save(state)
}

// Get loads the JSON value under key into out.
func (s *FileStore) Get(ctx context.Context, key string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return false, err
	}
	raw, ok := state.Values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// MarkOnce records key with an expiry timestamp. Expired marks are
// pruned on the way through so the file does not grow unbounded.
func (s *FileStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	for seenKey, expiry := range state.Seen {
		if now.After(expiry) {
			delete(state.Seen, seenKey)
		}
	}

	if expiry, ok := state.Seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	state.Seen[key] = now.Add(ttl)
	if err := s.save(state); err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() (fileState, error) {
	state := fileState{
		Values: map[string]json.RawMessage{},
		Seen:   map[string]time.Time{},
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state file: %w", err)
	}
	if state.Values == nil {
		state.Values = map[string]json.RawMessage{}
	}
	if state.Seen == nil {
		state.Seen = map[string]time.Time{}
	}
	return state, nil
}

func (s *FileStore) save(state fileState) error {
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
