package store

import (
	"time"

	"github.com/coocood/freecache"
)

// Cache is a bounded in-process byte cache with per-entry TTL.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Del(key string)
}

// NewCache returns a freecache-backed Cache of sizeMB megabytes, or a no-op
// cache when sizeMB is not positive.
func NewCache(sizeMB int, ttl time.Duration) Cache {
	if sizeMB <= 0 {
		return noopCache{}
	}
	secs := int(ttl.Seconds())
	if secs < 1 {
		secs = 1
	}
	return &memCache{cache: freecache.NewCache(sizeMB * 1024 * 1024), ttl: secs}
}

type memCache struct {
	cache *freecache.Cache
	ttl   int
}

func (c *memCache) Get(key string) ([]byte, bool) {
	v, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *memCache) Set(key string, value []byte) {
	_ = c.cache.Set([]byte(key), value, c.ttl)
}

func (c *memCache) Del(key string) {
	c.cache.Del([]byte(key))
}

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool) { return nil, false }
func (noopCache) Set(string, []byte)        {}
func (noopCache) Del(string)                {}
