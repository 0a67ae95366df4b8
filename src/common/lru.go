package common

import lru "github.com/hashicorp/golang-lru"

// LRU is a thin wrapper around hashicorp's LRU cache that hides the error
// returned by the underlying constructor; cache sizes come from validated
// configuration so a construction error here is a programming error.
type LRU struct {
	cache *lru.Cache
}

// NewLRU creates an LRU cache of the given size. The evict callback may be
// nil.
func NewLRU(size int, onEvict func(key interface{}, value interface{})) *LRU {
	var cache *lru.Cache
	var err error
	if onEvict != nil {
		cache, err = lru.NewWithEvict(size, onEvict)
	} else {
		cache, err = lru.New(size)
	}
	if err != nil {
		panic(err)
	}
	return &LRU{cache: cache}
}

// Get returns the value associated with key, if any.
func (c *LRU) Get(key interface{}) (interface{}, bool) {
	return c.cache.Get(key)
}

// Add inserts a value in the cache, possibly evicting the oldest item.
func (c *LRU) Add(key, value interface{}) {
	c.cache.Add(key, value)
}

// Contains reports whether key is in the cache without updating recency.
func (c *LRU) Contains(key interface{}) bool {
	return c.cache.Contains(key)
}

// Remove evicts the given key.
func (c *LRU) Remove(key interface{}) {
	c.cache.Remove(key)
}

// Len returns the number of cached items.
func (c *LRU) Len() int {
	return c.cache.Len()
}

// Keys returns the cached keys, oldest first.
func (c *LRU) Keys() []interface{} {
	return c.cache.Keys()
}
