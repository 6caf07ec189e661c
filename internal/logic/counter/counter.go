// Package counter persists the image sequence number that names every
// saved picture. The value survives restarts and never goes backwards.
package counter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrCorruptState means the counter file is missing or does not hold a
	// non-negative decimal integer. There is no safe default.
	ErrCorruptState = errors.New("corrupt counter state")
	// ErrPersist means the new value could not be written.
	ErrPersist = errors.New("persist counter")
)

// FileStore keeps the counter in a plain text file.
type FileStore struct {
	mu    sync.Mutex
	path  string
	value uint64
}

// Open reads the last persisted value from path.
func Open(path string) (*FileStore, error) {
	v, err := read(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, value: v}, nil
}

// Init creates (or overwrites) the counter file with v and opens it.
func Init(path string, v uint64) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Persist(v); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the counter file location.
func (s *FileStore) Path() string {
	return s.path
}

// Current returns the last reserved (or loaded) value.
func (s *FileStore) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Reserve increments the counter and persists it before returning the new
// value. On a failed write the in-memory value is left untouched.
func (s *FileStore) Reserve() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.value + 1
	if err := write(s.path, next); err != nil {
		return 0, err
	}
	s.value = next
	return next, nil
}

// Persist overwrites the stored value with v.
func (s *FileStore) Persist(v uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := write(s.path, v); err != nil {
		return err
	}
	s.value = v
	return nil
}

func read(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrCorruptState, path, err)
	}
	text := strings.TrimSpace(string(data))
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s holds %q, want a non-negative integer", ErrCorruptState, path, text)
	}
	return v, nil
}

// write replaces the file atomically so a crash never leaves it truncated.
func write(path string, v uint64) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatUint(v, 10)); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrPersist, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrPersist, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, path, err)
	}
	return nil
}
