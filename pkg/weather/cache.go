package weather

import (
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	snapshot Snapshot
	expires  time.Time
}

// snapshotCache is the process-wide weather cache. Expiry is checked on
// read; there is no background sweeper.
type snapshotCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(canonicalName string, days int) string {
	return fmt.Sprintf("%s|%d", canonicalName, days)
}

func (c *snapshotCache) get(key string) (Snapshot, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return Snapshot{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		// Re-check under the write lock; a fresher entry may have landed.
		if current, still := c.entries[key]; still && c.now().After(current.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Snapshot{}, false
	}

	return entry.snapshot, true
}

func (c *snapshotCache) put(key string, snapshot Snapshot) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		snapshot: snapshot,
		expires:  c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// clear drops every entry and reports how many were removed.
func (c *snapshotCache) clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	return n
}

func (c *snapshotCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
