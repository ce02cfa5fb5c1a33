package utils

import (
	"sync"
	"time"
)

type ttlItem[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a key/value map whose entries expire after a per-entry TTL.
// Expired entries are dropped lazily on read and in bulk by Sweep.
type TTLCache[V any] struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]ttlItem[V]
}

func NewTTLCache[V any](now func() time.Time) *TTLCache[V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{now: now, items: make(map[string]ttlItem[V])}
}

// Set stores value under key. A non-positive ttl never expires.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := ttlItem[V]{value: value}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = item
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(item, c.now()) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *TTLCache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if c.expired(item, now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len counts live entries.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for _, item := range c.items {
		if !c.expired(item, now) {
			count++
		}
	}
	return count
}

// Range calls fn for each live entry until fn returns false. fn must not
// call back into the cache.
func (c *TTLCache[V]) Range(fn func(key string, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if c.expired(item, now) {
			continue
		}
		if !fn(key, item.value) {
			return
		}
	}
}

func (c *TTLCache[V]) expired(item ttlItem[V], now time.Time) bool {
	if item.expiresAt.IsZero() {
		return false
	}
	return !now.Before(item.expiresAt)
}
