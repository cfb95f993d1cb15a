// Package cache provides the TTL caches for token logos and prices.
//
// Keys are always lowercased addresses. Expired entries are treated as
// absent on Get; the clock is injected so tests control expiry without
// sleeping.
package cache

import (
	"strings"
	"sync"
	"time"
)

const (
	// LogoTTL is how long a cached logo URL stays usable.
	LogoTTL = 24 * time.Hour
	// PriceTTL mirrors the server-side price cache lifetime so client and
	// server never disagree on staleness.
	PriceTTL = 30 * time.Minute
)

// Clock supplies the current time. Swapped out in tests.
type Clock func() time.Time

// Entry is one cached value with the time it was written.
type Entry[V any] struct {
	Address   string    `json:"address"`
	Value     V         `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Persistence is the durable backend a Store flushes to on batch writes.
type Persistence[V any] interface {
	Save(snapshot Snapshot[V]) error
	Load() (Snapshot[V], bool, error)
}

// Snapshot is the serialized form of a Store. SavedAt gates all-or-nothing
// invalidation on load: a snapshot older than the TTL is discarded wholesale
// rather than filtered entry by entry.
type Snapshot[V any] struct {
	SavedAt time.Time           `json:"savedAt"`
	Entries map[string]Entry[V] `json:"entries"`
}

// Store is an in-memory TTL cache keyed by lowercased address, optionally
// backed by a Persistence.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
	ttl     time.Duration
	clock   Clock
	backend Persistence[V]
}

// NewStore builds a Store with the given TTL. A nil clock defaults to
// time.Now; a nil backend disables persistence.
func NewStore[V any](ttl time.Duration, clock Clock, backend Persistence[V]) *Store[V] {
	if clock == nil {
		clock = time.Now
	}
	return &Store[V]{
		entries: make(map[string]Entry[V]),
		ttl:     ttl,
		clock:   clock,
		backend: backend,
	}
}

// Key normalizes an address into its canonical cache key.
func Key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Get returns the cached value for address. Expired entries are reported as
// absent; they are not removed here so a subsequent Set overwrites in place.
func (s *Store[V]) Get(address string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[Key(address)]
	if !ok || s.expired(entry) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores a single value for address.
func (s *Store[V]) Set(address string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(address, value)
}

// SetBatch stores several values at once and flushes to the persistence
// backend in one write. Flush failures are returned but leave the in-memory
// state intact.
func (s *Store[V]) SetBatch(values map[string]V) error {
	s.mu.Lock()
	for address, value := range values {
		s.put(address, value)
	}
	snapshot := s.snapshotLocked()
	backend := s.backend
	s.mu.Unlock()

	if backend == nil || len(values) == 0 {
		return nil
	}
	return backend.Save(snapshot)
}

// LoadPersisted restores state from the persistence backend. A snapshot whose
// SavedAt exceeds the TTL is dropped entirely to bound load-time cost.
func (s *Store[V]) LoadPersisted() error {
	if s.backend == nil {
		return nil
	}
	snapshot, ok, err := s.backend.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if s.clock().Sub(snapshot.SavedAt) > s.ttl {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range snapshot.Entries {
		s.entries[Key(key)] = entry
	}
	return nil
}

// Len returns the number of entries currently held, expired ones included.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prune removes expired entries and returns how many were dropped.
func (s *Store[V]) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *Store[V]) put(address string, value V) {
	key := Key(address)
	s.entries[key] = Entry[V]{
		Address:   key,
		Value:     value,
		Timestamp: s.clock(),
	}
}

func (s *Store[V]) expired(entry Entry[V]) bool {
	return s.clock().Sub(entry.Timestamp) > s.ttl
}

func (s *Store[V]) snapshotLocked() Snapshot[V] {
	copied := make(map[string]Entry[V], len(s.entries))
	for key, entry := range s.entries {
		copied[key] = entry
	}
	return Snapshot[V]{SavedAt: s.clock(), Entries: copied}
}
