package tokencache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts cache files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// FileStore keeps the cache in a single JSON file. Writes are atomic, but
// two processes saving at once still race: the last rename wins.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cache file. A missing file is a cold start.
func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("tokencache: reading %s: %w", s.path, err)
	}

	return data, nil
}

// Save writes the cache atomically (temp file + fsync + rename) with 0600
// permissions.
func (s *FileStore) Save(_ context.Context, blob []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokencache: creating directory %s: %w", dir, err)
	}

	// Same directory keeps rename(2) on one filesystem.
	tmp, err := os.CreateTemp(dir, ".token-cache-*.tmp")
	if err != nil {
		return fmt.Errorf("tokencache: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: setting permissions: %w", err)
	}

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokencache: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("tokencache: renaming: %w", err)
	}

	success = true

	return nil
}

// Close is a no-op; the file is not held open.
func (s *FileStore) Close() error {
	return nil
}
