package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore appends log content below a target root directory, one
// subdirectory per solution.
type LocalStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(root string) (*LocalStore, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create target directory %s: %w", root, err)
	}

	return &LocalStore{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the target root directory.
func (s *LocalStore) Root() string {
	return s.root
}

// Path resolves the destination of a derived name.
func (s *LocalStore) Path(solution, name string) string {
	return Path(s.root, solution, name)
}

// pathLock returns the mutex serializing writers of path.
func (s *LocalStore) pathLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Append writes data to the end of the destination file, creating it and its
// directory when needed. Concurrent appends to the same path never
// interleave.
func (s *LocalStore) Append(ctx context.Context, solution, name string, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path := s.Path(solution, name)

	l := s.pathLock(path)
	l.Lock()
	defer l.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	n, err := f.Write(data)
	if err != nil {
		f.Close()
		return int64(n), fmt.Errorf("append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return int64(n), fmt.Errorf("close %s: %w", path, err)
	}
	return int64(n), nil
}
