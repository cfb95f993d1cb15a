package bookmark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/logger"
)

const (
	storeFilePermissions = 0o640
	storeDirPermissions  = 0o750
)

// Store keeps bookmarks in memory, persisted to a JSON file. Addresses are
// unique keys; writes are flushed synchronously.
type Store struct {
	mu        sync.RWMutex
	path      string
	bookmarks map[string]Bookmark
}

// NewStore loads (or initializes) a bookmark store at path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, bookmarks: make(map[string]Bookmark)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bookmark store: %w", err)
	}

	var loaded []Bookmark
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing bookmark store: %w", err)
	}
	for _, b := range loaded {
		s.bookmarks[strings.ToLower(b.Address)] = b
	}
	logger.Info("bookmark store loaded", "path", path, "count", len(s.bookmarks))
	return s, nil
}

// List returns all bookmarks ordered by address.
func (s *Store) List() []Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Bookmark, 0, len(s.bookmarks))
	for _, b := range s.bookmarks {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].Address) < strings.ToLower(all[j].Address)
	})
	return all
}

// Put inserts or replaces bookmarks and persists the store.
func (s *Store) Put(bookmarks ...Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bookmarks {
		if !addressPattern.MatchString(b.Address) {
			continue
		}
		s.bookmarks[strings.ToLower(b.Address)] = b
	}
	return s.flushLocked()
}

// Delete removes a bookmark by address and persists the store. Removing an
// unknown address is a no-op.
func (s *Store) Delete(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(address)
	if _, ok := s.bookmarks[key]; !ok {
		return nil
	}
	delete(s.bookmarks, key)
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	all := make([]Bookmark, 0, len(s.bookmarks))
	for _, b := range s.bookmarks {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].Address) < strings.ToLower(all[j].Address)
	})

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bookmarks: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), storeDirPermissions); err != nil {
		return fmt.Errorf("creating bookmark directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, storeFilePermissions); err != nil {
		return fmt.Errorf("writing bookmark store: %w", err)
	}
	return nil
}
