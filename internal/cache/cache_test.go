package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is an adjustable Clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStore_CaseInsensitiveKeys(t *testing.T) {
	t.Parallel()

	store := NewStore[float64](PriceTTL, nil, nil)
	store.Set("0xABCDEF0123456789abcdef0123456789ABCDEF01", 1.5)

	price, ok := store.Get("0xabcdef0123456789abcdef0123456789abcdef01")
	require.True(t, ok)
	assert.Equal(t, 1.5, price)

	price, ok = store.Get("  0xABCDEF0123456789ABCDEF0123456789ABCDEF01  ")
	require.True(t, ok)
	assert.Equal(t, 1.5, price)
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewStore[string](LogoTTL, clock.Now, nil)
	store.Set("0xtoken", "https://example.com/logo.png")

	_, ok := store.Get("0xtoken")
	require.True(t, ok)

	clock.Advance(LogoTTL - time.Minute)
	_, ok = store.Get("0xtoken")
	assert.True(t, ok, "entry inside TTL should still be served")

	clock.Advance(2 * time.Minute)
	_, ok = store.Get("0xtoken")
	assert.False(t, ok, "entry past TTL must read as absent")

	// Overwriting an expired entry makes it fresh again.
	store.Set("0xtoken", "https://example.com/logo2.png")
	logo, ok := store.Get("0xtoken")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/logo2.png", logo)
}

func TestStore_Prune(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewStore[float64](PriceTTL, clock.Now, nil)
	store.Set("0xold", 1)
	clock.Advance(PriceTTL + time.Second)
	store.Set("0xfresh", 2)

	removed := store.Prune()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	_, ok := store.Get("0xfresh")
	assert.True(t, ok)
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "prices.json")

	store := NewStore[float64](PriceTTL, clock.Now, NewFileStorage[float64](path))
	err := store.SetBatch(map[string]float64{
		"0xAAA0000000000000000000000000000000000001": 0.25,
		"0xBBB0000000000000000000000000000000000002": 12.5,
	})
	require.NoError(t, err)

	restored := NewStore[float64](PriceTTL, clock.Now, NewFileStorage[float64](path))
	require.NoError(t, restored.LoadPersisted())
	assert.Equal(t, 2, restored.Len())

	price, ok := restored.Get("0xaaa0000000000000000000000000000000000001")
	require.True(t, ok)
	assert.Equal(t, 0.25, price)
}

func TestStore_StaleSnapshotDiscardedWholesale(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "prices.json")

	store := NewStore[float64](PriceTTL, clock.Now, NewFileStorage[float64](path))
	require.NoError(t, store.SetBatch(map[string]float64{"0xaaa": 1, "0xbbb": 2}))

	// The snapshot on disk is older than the TTL: nothing survives, not even
	// entries that would individually still be fresh.
	clock.Advance(PriceTTL + time.Minute)
	restored := NewStore[float64](PriceTTL, clock.Now, NewFileStorage[float64](path))
	require.NoError(t, restored.LoadPersisted())
	assert.Equal(t, 0, restored.Len())
}

func TestFileStorage_MissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	storage := NewFileStorage[string](filepath.Join(t.TempDir(), "absent.json"))
	_, found, err := storage.Load()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStorage_CorruptFileQuarantined(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "logos.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o640))

	storage := NewFileStorage[string](path)
	_, found, err := storage.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptCache))
	assert.False(t, found)

	// Original file was moved aside so the next Save starts clean.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), ".corrupt.")
}
