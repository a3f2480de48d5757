// Package favorites persists the set of favorited peer names across restarts.
// Favorites are a local preference and are never sent over the wire.
package favorites

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	// FileName is the default favorites file inside the config directory
	FileName = "favorites.json"

	fileVersion = 1
)

// fileData is the on-disk layout of a FileStore
type fileData struct {
	Version   int      `json:"version"`
	Favorites []string `json:"favorites"`
}

// FileStore keeps favorites in a JSON file
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the JSON file at path.
// The file is created on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Get reads the favorites file. A missing file yields an empty set.
func (s *FileStore) Get() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read favorites file: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("failed to parse favorites file: %w", err)
	}
	return dedupe(fd.Favorites), nil
}

// Set replaces the favorites file contents
func (s *FileStore) Set(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create favorites directory: %w", err)
	}

	data, err := json.MarshalIndent(fileData{
		Version:   fileVersion,
		Favorites: dedupe(names),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}

	// Write to a temp file first so a reader never sees a half-written file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".favorites-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write favorites: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write favorites: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace favorites file: %w", err)
	}
	return nil
}

// MemoryStore keeps favorites in memory only
type MemoryStore struct {
	mu    sync.Mutex
	names []string
}

// NewMemoryStore returns an in-memory store seeded with names
func NewMemoryStore(names ...string) *MemoryStore {
	return &MemoryStore{names: dedupe(names)}
}

// Get returns a copy of the stored names
func (s *MemoryStore) Get() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out, nil
}

// Set replaces the stored names
func (s *MemoryStore) Set(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = dedupe(names)
	return nil
}

// dedupe returns the sorted unique names, dropping empty strings
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
