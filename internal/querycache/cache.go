// Package querycache memoises derived query results.
//
// Entries are keyed by the full parameter tuple plus the snapshot ID, so a
// result computed for one snapshot is never served for another, and two
// queries that differ in any parameter never share an entry.
package querycache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one query evaluation.
// Unused parameters stay at their zero value.
type Key struct {
	Snapshot  string
	Query     string
	Hour      int
	Threshold int
	Class     string
	Radius    float64
	K         int
}

// String renders the key for debug logs.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s(hour=%d threshold=%d class=%s radius=%g k=%d)",
		k.Snapshot, k.Query, k.Hour, k.Threshold, k.Class, k.Radius, k.K)
}

// Cache is a bounded LRU of query results. It is safe for concurrent use.
// A nil *Cache is valid and caches nothing.
type Cache struct {
	entries *lru.Cache[Key, any]
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache holding up to size results.
func New(size int) (*Cache, error) {
	entries, err := lru.New[Key, any](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns the cached value for k.
func (c *Cache) Get(k Key) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.entries.Get(k)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Add stores v under k, evicting the least recently used entry if full.
func (c *Cache) Add(k Key, v any) {
	if c == nil {
		return
	}
	c.entries.Add(k, v)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every entry, e.g. when the snapshot is replaced.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Do returns the cached value for k, or runs compute and caches a successful result.
// Errors are never cached.
func Do[T any](c *Cache, k Key, compute func() (T, error)) (T, error) {
	if v, ok := c.Get(k); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	t, err := compute()
	if err != nil {
		return t, err
	}
	c.Add(k, t)
	return t, nil
}
