package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// DefaultStorageDir is the default directory for secrets, relative to $HOME.
const DefaultStorageDir = ".config/calbrief/secrets"

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// FileBackend stores each secret as <dir>/<name>.json.
//
// SECURITY: This backend handles OAuth credentials and API keys.
//   - Files are created with 0600 permissions (owner read/write only)
//   - The storage directory is created with 0700 permissions
//   - Writes go to a temp file and are renamed into place
//   - Values are never logged
type FileBackend struct {
	mu  sync.Mutex
	dir string
}

// NewFileBackend creates the storage directory if needed. An empty dir
// resolves to ~/.config/calbrief/secrets.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret storage directory: %w", err)
	}

	return &FileBackend{dir: dir}, nil
}

// Dir returns the storage directory.
func (f *FileBackend) Dir() string {
	return f.dir
}

func (f *FileBackend) path(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	return filepath.Join(f.dir, name+".json"), nil
}

func (f *FileBackend) Get(_ context.Context, name string) ([]byte, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// #nosec G304 -- path is built from a validated internal name
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, name, err)
	}
	return data, nil
}

func (f *FileBackend) Put(_ context.Context, name string, value []byte) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod: %v", ErrStoreUnavailable, err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrStoreUnavailable, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrStoreUnavailable, name, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrStoreUnavailable, name, err)
	}
	return nil
}

func (f *FileBackend) Delete(_ context.Context, name string) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err = os.Remove(p)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, name, err)
}

func (f *FileBackend) Close() error { return nil }
