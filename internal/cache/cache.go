// Package cache provides a thread-safe in-memory cache with TTL expiry
// and LRU eviction, used to keep remote tree reads off the network.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Stats reports cumulative cache effectiveness counters.
type Stats struct {
	Hits   int64
	Misses int64
}

type entry struct {
	value        any
	expiresAt    time.Time
	lastAccessed time.Time
}

// Cache is a TTL + LRU keyed cache. All operations are thread-safe.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	hits       int64
	misses     int64
}

// New creates a cache whose entries expire after ttl. When the cache
// holds maxEntries, inserting a new key evicts the least recently used
// entry.
func New(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Set stores value under key, replacing any existing entry.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	now := time.Now()
	c.entries[key] = &entry{
		value:        value,
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
}

// Get returns the value stored under key. Expired entries are removed
// on access and count as misses.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	e.lastAccessed = time.Now()
	c.hits++
	return e.value, true
}

// Delete removes key. No-op when the key is absent.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePrefix removes every entry whose key starts with prefix.
// Returns the number of entries removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries. Stats counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the current number of live entries, counting expired
// ones not yet collected.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the cumulative hit and miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

// evictLRU removes the least recently accessed entry. Caller must hold
// the lock.
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, e := range c.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
