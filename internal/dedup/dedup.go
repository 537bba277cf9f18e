// Package dedup provides an in-process TTL key/value cache used to suppress
// repeated events within one process lifetime.
package dedup

import (
	"sync"
	"time"
)

type entry struct {
	value   any
	expires time.Time
}

// Cache holds values with a per-key TTL. Expiry is lazy: a Get past the
// deadline removes the entry and reports absence. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swappable in tests.
	now func() time.Time
}

// New initializes an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Set stores value under key for ttl, replacing any previous entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expires: c.now().Add(ttl)}
}

// Get returns the live value for key. The second return distinguishes a
// stored falsy value from absence.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// CheckAndSet inserts value under key for ttl only if no live entry exists.
// It returns true when the insert happened, false when key was already live.
// The check and insert are a single critical section, so concurrent callers
// racing on the same key see exactly one winner.
func (c *Cache) CheckAndSet(key string, value any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && !c.now().After(e.expires) {
		return false
	}
	c.entries[key] = entry{value: value, expires: c.now().Add(ttl)}
	return true
}

// Len reports the number of stored entries, including any not yet lazily
// expired. Used for metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
