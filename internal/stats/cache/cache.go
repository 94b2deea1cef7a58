// Package cache implements the statistics engine's in-process cache: an
// LRU-bounded store with TTL expiry and tag-based invalidation.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   any
	expires time.Time
	tags    []string
}

// Cache is a composite-key (operation name + parameter tuple, flattened by
// the caller into a single string key) store with TTL and tag invalidation.
type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, entry]
	tagKeys map[string]map[string]struct{} // tag -> set of keys
}

// New returns a Cache bounded to size entries (LRU eviction beyond that).
func New(size int) *Cache {
	if size <= 0 {
		size = 1000
	}
	l, _ := lru.New[string, entry](size)
	return &Cache{lru: l, tagKeys: make(map[string]map[string]struct{})}
}

// Put stores value under key with the given TTL and dependency tags.
func (c *Cache) Put(key string, value any, ttl time.Duration, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value, expires: time.Now().Add(ttl), tags: tags}
	c.lru.Add(key, e)
	for _, tag := range tags {
		set, ok := c.tagKeys[tag]
		if !ok {
			set = make(map[string]struct{})
			c.tagKeys[tag] = set
		}
		set[key] = struct{}{}
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Invalidate removes every entry tagged with tag.
func (c *Cache) Invalidate(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(tag)
}

func (c *Cache) invalidateLocked(tag string) {
	keys, ok := c.tagKeys[tag]
	if !ok {
		return
	}
	for key := range keys {
		c.lru.Remove(key)
	}
	delete(c.tagKeys, tag)
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
