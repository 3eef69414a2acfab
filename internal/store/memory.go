package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory ContentStore for tests and for hosts that manage
// content themselves (an editor buffer, a database row).
type MemStore struct {
	mu    sync.Mutex
	files map[string]string

	// WriteErr, when set, makes every Write fail with it. Tests use this to
	// exercise the backup-before-write ordering.
	WriteErr error
}

// NewMemStore creates an empty in-memory content store.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string]string)}
}

// Read returns the stored content for path.
func (s *MemStore) Read(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	if !ok {
		return "", fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return content, nil
}

// Write stores content under path.
func (s *MemStore) Write(_ context.Context, path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.files[path] = content
	return nil
}

// List returns the stored paths under dir, sorted.
func (s *MemStore) List(_ context.Context, dir string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(dir, "/")
	var paths []string
	for p := range s.files {
		if prefix == "" || prefix == "." || p == prefix || strings.HasPrefix(p, prefix+"/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
