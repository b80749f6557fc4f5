package transport

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache keeps successful response bodies for the lifetime of an entry.
type Cache struct {
	cache *gocache.Cache
}

// NewCache creates a cache with the given entry lifetime.
func NewCache(ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{cache: gocache.New(ttl, cleanupInterval)}
}

// Get returns a cached body.
func (c *Cache) Get(key string) ([]byte, bool) {
	if v, ok := c.cache.Get(key); ok {
		return v.([]byte), true
	}
	return nil, false
}

// Set stores a body with the default lifetime.
func (c *Cache) Set(key string, body []byte) {
	c.cache.SetDefault(key, body)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.cache.ItemCount()
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.cache.Flush()
}
