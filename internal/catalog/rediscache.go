package catalog

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache adapts *redis.Client to HotCache, keeping the catalog
// package free of a concrete driver import.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing *redis.Client for use as a Catalog
// hot cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
