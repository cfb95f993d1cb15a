package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/logger"
)

const (
	cacheFilePermissions = 0o640
	cacheDirPermissions  = 0o750
)

// ErrCorruptCache indicates the cache file is malformed JSON.
var ErrCorruptCache = errors.New("cache file is corrupted")

// FileStorage implements Persistence using a JSON file.
type FileStorage[V any] struct {
	path string
}

// NewFileStorage creates a file-backed persistence at path.
func NewFileStorage[V any](path string) *FileStorage[V] {
	return &FileStorage[V]{path: path}
}

// Save writes the snapshot to the filesystem.
func (s *FileStorage[V]) Save(snapshot Snapshot[V]) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, cacheDirPermissions); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	if err := os.WriteFile(s.path, data, cacheFilePermissions); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Load reads a snapshot from the filesystem. A missing file is not an error;
// a corrupted file is quarantined so the next Save starts clean.
func (s *FileStorage[V]) Load() (Snapshot[V], bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Snapshot[V]{}, false, nil
	}
	if err != nil {
		return Snapshot[V]{}, false, fmt.Errorf("reading cache file: %w", err)
	}

	var snapshot Snapshot[V]
	if err := json.Unmarshal(data, &snapshot); err != nil {
		corruptPath := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UTC().UnixNano())
		if renameErr := os.Rename(s.path, corruptPath); renameErr != nil {
			return Snapshot[V]{}, false, fmt.Errorf("%w: %w (also failed to move file: %w)", ErrCorruptCache, err, renameErr)
		}
		logger.Warn("quarantined corrupt cache file", "path", s.path, "moved_to", corruptPath)
		return Snapshot[V]{}, false, fmt.Errorf("%w: %w (moved to %s)", ErrCorruptCache, err, corruptPath)
	}

	if snapshot.Entries == nil {
		snapshot.Entries = make(map[string]Entry[V])
	}
	return snapshot, true, nil
}

// Path returns the cache file path.
func (s *FileStorage[V]) Path() string {
	return s.path
}
