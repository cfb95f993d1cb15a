package cache

import "sync"

// call is one in-flight load. Joiners wait on done and read the shared result.
type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Flight deduplicates concurrent loads for the same key: while a loader for a
// key is in progress, later callers join the existing call instead of issuing
// their own fetch.
type Flight[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]
}

// NewFlight creates an empty Flight.
func NewFlight[V any]() *Flight[V] {
	return &Flight[V]{calls: make(map[string]*call[V])}
}

// Do runs loader for key, or joins an in-flight loader for the same key and
// returns its result. The key is normalized like cache keys.
func (f *Flight[V]) Do(key string, loader func() (V, error)) (V, error) {
	key = Key(key)

	f.mu.Lock()
	if c, ok := f.calls[key]; ok {
		f.mu.Unlock()
		<-c.done
		return c.val, c.err
	}
	c := &call[V]{done: make(chan struct{})}
	f.calls[key] = c
	f.mu.Unlock()

	c.val, c.err = loader()

	f.mu.Lock()
	delete(f.calls, key)
	f.mu.Unlock()
	close(c.done)

	return c.val, c.err
}

// InFlight reports whether a loader for key is currently running.
func (f *Flight[V]) InFlight(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.calls[Key(key)]
	return ok
}
