// Package cache provides a small generic LRU used for validated shader modules.
//
//	c := cache.New[string, *Module](64)
//	c.Set(key, m)
//	m, ok := c.Get(key)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache

import (
	"container/list"
	"sync"
)

// Cache is a thread-safe least-recently-used cache with a fixed capacity.
// A capacity of 0 means unlimited.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recently used
	entries  map[K]*list.Element
	stats    Stats
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[K]*list.Element),
	}
}

// Get returns the cached value for key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry[K, V]).key)
		c.stats.Evictions++
	}
}

// Delete removes key. It reports whether the key was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return true
}

// Clear drops every entry. Statistics are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[K]*list.Element)
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Len = c.order.Len()
	s.Capacity = c.capacity
	return s
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
