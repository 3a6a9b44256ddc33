package breach

import (
	"sort"
	"sync"
	"time"
)

type cacheEntry struct {
	count int
	at    time.Time
}

// cache maps full SHA-1 hashes to breach counts. Entries older than ttl are
// ignored. When it grows past max it keeps only the keep newest entries.
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	max     int
	keep    int
}

func newCache(ttl time.Duration, max, keep int) *cache {
	return &cache{entries: make(map[string]cacheEntry), ttl: ttl, max: max, keep: keep}
}

func (c *cache) get(hash string, now time.Time) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[hash]
	if !ok {
		return 0, false
	}
	if now.Sub(e.at) >= c.ttl {
		delete(c.entries, hash)
		return 0, false
	}
	return e.count, true
}

func (c *cache) put(hash string, count int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[hash] = cacheEntry{count: count, at: now}
	if len(c.entries) > c.max {
		c.trim()
	}
}

func (c *cache) trim() {
	type aged struct {
		hash string
		at   time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for h, e := range c.entries {
		all = append(all, aged{h, e.at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })
	for _, e := range all[c.keep:] {
		delete(c.entries, e.hash)
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
