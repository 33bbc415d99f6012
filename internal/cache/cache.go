// Package cache implements the process-wide preview cache: a TTL'd
// string-keyed map sized by memory pressure rather than cardinality.
package cache

import (
	"context"
	"log"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Key namespaces. The set of children of a bitmap grows monotonically, so
// age-based expiry is the only invalidation it needs.
const (
	NSPreview  = "preview:"
	NSContent  = "content:"
	NSDetails  = "details:"
	NSDeployer = "deployer:"
	NSChildren = "children:"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultPressure    = 0.85 // fraction of heap in use before soft eviction
	DefaultEmergencyMB = 3072
	sweepInterval      = time.Minute
)

type entry struct {
	value   any
	created time.Time
}

// Cache is safe for concurrent use by all pipeline tasks.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	ttl       time.Duration
	pressure  float64
	emergency uint64 // bytes
}

// Option tunes a Cache.
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithPressureThreshold(frac float64) Option {
	return func(c *Cache) { c.pressure = frac }
}

func WithEmergencyMB(mb int) Option {
	return func(c *Cache) { c.emergency = uint64(mb) * 1024 * 1024 }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]entry),
		ttl:       DefaultTTL,
		pressure:  DefaultPressure,
		emergency: DefaultEmergencyMB * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. Entries older than the TTL are
// discarded on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.created) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have refreshed it.
		if cur, ok := c.entries[key]; ok && time.Since(cur.created) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the current timestamp.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, created: time.Now()}
	c.mu.Unlock()
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Run drives the background sweeps until ctx is cancelled. Owned by the
// cache itself so shutdown is a plain context cancel.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes expired entries and, under memory pressure, the oldest
// quartile (half above the emergency limit).
func (c *Cache) Sweep() {
	c.mu.Lock()
	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.created) > c.ttl {
			delete(c.entries, k)
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	switch {
	case ms.HeapAlloc > c.emergency:
		evicted := c.evictOldest(0.50)
		log.Printf("[Cache] emergency sweep: heap %dMB over limit, evicted %d of %d entries",
			ms.HeapAlloc/(1024*1024), evicted, remaining)
	case ms.HeapSys > 0 && float64(ms.HeapAlloc)/float64(ms.HeapSys) > c.pressure:
		c.evictOldest(0.25)
	}
}

// evictOldest drops the given fraction of entries, oldest first, and returns
// how many were removed.
func (c *Cache) evictOldest(frac float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int(float64(len(c.entries)) * frac)
	if n == 0 {
		return 0
	}

	type aged struct {
		key     string
		created time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.created})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].created.Before(all[j].created) })

	for i := 0; i < n; i++ {
		delete(c.entries, all[i].key)
	}
	return n
}
