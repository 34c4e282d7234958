// Package cache provides a small process-lifetime cache used by the secret
// resolver to avoid re-reading a secret backend on every resolve_secret
// call, backed directly by hashicorp/golang-lru/v2 instead of a hand-rolled
// eviction scheme.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a generic, fixed-capacity, LRU-evicted cache.
type Cache[K comparable, V any] struct {
	inner *lru.Cache[K, V]
}

// New builds a Cache holding at most size entries.
func New[K comparable, V any](size int) (*Cache[K, V], error) {
	inner, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{inner: inner}, nil
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.inner.Add(key, value)
}

func (c *Cache[K, V]) Remove(key K) {
	c.inner.Remove(key)
}

func (c *Cache[K, V]) Len() int {
	return c.inner.Len()
}
