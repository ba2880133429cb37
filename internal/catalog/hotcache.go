package catalog

import (
	"context"
	"time"
)

// HotCache is a minimal interface any cache driver (go-redis, redigo) can
// satisfy, keeping catalog code free of a concrete driver import. A
// catalog with no cache attached behaves exactly as before: SetCache is
// optional.
type HotCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// SetCache attaches a write-through hot cache under key. Every successful
// Source call after this point also stores the raw source buffer in the
// cache, and WarmFromCache can later repopulate a freshly started process
// from it before the first database-backed rebuild completes.
func (c *Catalog[T]) SetCache(cache HotCache, key string, ttl time.Duration) {
	c.mu.Lock()
	c.cache = cache
	c.cacheKey = key
	c.cacheTTL = ttl
	c.mu.Unlock()
}

// WarmFromCache loads a previously cached raw source buffer, if a cache is
// attached and holds one, and installs it exactly as Source would. It lets
// a freshly started process answer a Source*Table request with the data
// from its last run instead of an empty table while the real database
// rebuild is still in flight; the next dirtying event (e.g. an insert)
// still forces a fresh database-backed rebuild as usual.
func (c *Catalog[T]) WarmFromCache(ctx context.Context) (bool, error) {
	c.mu.RLock()
	cache, key := c.cache, c.cacheKey
	c.mu.RUnlock()
	if cache == nil {
		return false, nil
	}

	data, err := cache.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := c.Source(data); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Catalog[T]) writeThrough(ctx context.Context, data []byte) {
	c.mu.RLock()
	cache, key, ttl := c.cache, c.cacheKey, c.cacheTTL
	c.mu.RUnlock()
	if cache == nil {
		return
	}
	_ = cache.Set(ctx, key, data, ttl)
}
