// Package cache provides the per-process read cache used by the evaldb
// engine. Entries are keyed by canonical resource key and hold the JSON
// text form only; capacity is bounded with least-recently-used eviction.
//
// The cache is private to one process. Cross-process freshness is handled
// by the lock coordinator, not here; within a process a put invalidates the
// target key synchronously before the write is reported complete.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached resource in JSON text form.
type Entry struct {
	JSON string

	// ModTime is the source object's modification time at read, when the
	// store could provide one. Used to detect out-of-band writes.
	ModTime time.Time

	// StoredAt is when the entry was inserted.
	StoredAt time.Time
}

// Cache is a bounded LRU of resolved resources.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, Entry]
	hits    int64
	misses  int64
}

// DefaultSize is the default entry capacity.
const DefaultSize = 64

// New creates a cache holding at most size entries. A non-positive size
// falls back to DefaultSize.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	// Size is validated above, so construction cannot fail.
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		panic("cache: " + err.Error())
	}
	return &Cache{entries: entries}
}

// Get returns the entry for key and whether it was present.
// A hit refreshes the key's recency.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if ok {
		c.hits++
		return e, true
	}
	c.misses++
	return Entry{}, false
}

// Put inserts or replaces the entry for key, evicting the least recently
// used entry when the cache is at capacity.
func (c *Cache) Put(key string, e Entry) {
	e.StoredAt = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, e)
}

// Invalidate removes the entry for key, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// InvalidateAll drops every entry and resets the hit/miss counters.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.hits = 0
	c.misses = 0
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Hits returns the number of cache hits since the last InvalidateAll.
func (c *Cache) Hits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Misses returns the number of cache misses since the last InvalidateAll.
func (c *Cache) Misses() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}
