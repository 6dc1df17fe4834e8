package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for empty, absolute or traversing object paths.
var ErrInvalidPath = errors.New("invalid object path")

// FSStore implements ObjectStore on a local directory tree.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed object store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// resolve maps a relative object path onto the root, refusing traversal
// outside it.
func (s *FSStore) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", ErrInvalidPath
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes the object, creating parent directories as needed. The write
// goes to a temp file first so readers never observe a partial object.
func (s *FSStore) Put(ctx context.Context, relPath string, r io.Reader) (int64, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return 0, fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp object: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to close temp object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to place object: %w", err)
	}
	return n, nil
}

// Open opens the object for reading.
func (s *FSStore) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Exists reports whether an object is present at the path.
func (s *FSStore) Exists(ctx context.Context, relPath string) (bool, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// Delete removes the object. Absent objects are fine: the compensating
// cleanup path may run after a failed Put.
func (s *FSStore) Delete(ctx context.Context, relPath string) error {
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
