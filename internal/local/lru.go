// Package local implements the in-process Tier 1 cache: a fixed-capacity
// LRU with lazy per-entry expiration. It never fails; the worst it can do
// is miss.
package local

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"tiercache/internal/entry"
)

// Cache is the bounded Tier 1 cache. All operations are O(1) amortized;
// expired entries are dropped on access rather than by a background sweep,
// which bounds cleanup work to the access rate.
type Cache struct {
	lru        *lru.Cache[string, *entry.Entry]
	maxEntries int
	maxBytes   int64

	usedBytes int64
	hits      int64
	misses    int64
	evictions int64

	// Guards usedBytes and the counters relative to LRU mutations. The
	// hashicorp LRU is itself safe, but the byte gauge must move atomically
	// with the eviction it belongs to.
	mu sync.Mutex
}

// Memory is the Tier 1 byte gauge
type Memory struct {
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
	Total     int64 `json:"total"`
}

// Stats is a read-only snapshot of Tier 1 counters
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
	Memory    Memory  `json:"memory"`
}

// New creates a Tier 1 cache holding at most maxEntries entries. maxBytes
// only feeds the memory gauge; the entry count is the hard ceiling.
func New(maxEntries int, maxBytes int64) (*Cache, error) {
	c := &Cache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}

	// The eviction callback runs inside Add/Remove while c.mu is held by
	// the mutating caller, so the gauge stays consistent with the eviction.
	inner, err := lru.NewWithEvict[string, *entry.Entry](maxEntries, func(key string, e *entry.Entry) {
		c.usedBytes -= int64(e.SizeBytes)
	})
	if err != nil {
		return nil, err
	}

	c.lru = inner
	return c, nil
}

// Get returns the entry for key, updating recency. Expired entries are
// removed and reported as misses.
func (c *Cache) Get(key string) (*entry.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}

	if e.IsExpired() {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}

	c.hits++
	return e, true
}

// Set inserts or replaces the entry for e.Key. When the cache is full and
// the key is new, the least-recently-used entry is evicted first.
func (c *Cache) Set(e *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacing a key does not fire the eviction callback, so settle the
	// gauge for the value being overwritten here.
	if old, ok := c.lru.Peek(e.Key); ok {
		c.usedBytes -= int64(old.SizeBytes)
	}

	if evicted := c.lru.Add(e.Key, e); evicted {
		c.evictions++
	}
	c.usedBytes += int64(e.SizeBytes)
}

// Delete removes key and reports whether it was present
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Remove(key)
}

// Has reports whether key is present and unexpired, without touching recency
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	return ok && !e.IsExpired()
}

// Keys returns the keys currently held, oldest first
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Keys()
}

// Len returns the number of entries currently held
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

// Clear removes every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.usedBytes = 0
}

// Capacity returns the configured entry ceiling
func (c *Cache) Capacity() int {
	return c.maxEntries
}

// DeleteFunc removes every entry for which match returns true and returns
// how many were removed. Used for tag and pattern invalidation, which scan
// Tier 1 exactly.
func (c *Cache) DeleteFunc(match func(*entry.Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if match(e) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the Tier 1 counters and memory gauge
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.lru.Len(),
		Memory: Memory{
			Used:  c.usedBytes,
			Total: c.maxBytes,
		},
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if c.maxBytes > 0 {
		available := c.maxBytes - c.usedBytes
		if available < 0 {
			available = 0
		}
		stats.Memory.Available = available
	}

	return stats
}
