package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = append([]byte{}, value...)
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func TestCatalogWriteThroughPopulatesCacheOnSource(t *testing.T) {
	cache := newFakeCache()
	c := New(NullProduct(), DecodeProduct)
	c.SetCache(cache, "products", time.Minute)

	require.NoError(t, c.Source(buildProductSource(map[uint32]string{1: "standard"})))

	cached, ok := cache.data["products"]
	require.True(t, ok)
	assert.Equal(t, c.RawSource(), cached)
}

func TestCatalogWarmFromCacheInstallsCachedBuffer(t *testing.T) {
	cache := newFakeCache()
	cache.data["products"] = buildProductSource(map[uint32]string{1: "standard", 2: "premium"})

	c := New(NullProduct(), DecodeProduct)
	c.SetCache(cache, "products", time.Minute)
	require.True(t, c.Dirty())

	warmed, err := c.WarmFromCache(context.Background())
	require.NoError(t, err)
	assert.True(t, warmed)

	e, ok := c.GetByHandle(2)
	require.True(t, ok)
	assert.Equal(t, "premium", e.Name)
	assert.False(t, c.Dirty())
}

func TestCatalogWarmFromCacheWithoutCacheIsNoop(t *testing.T) {
	c := New(NullProduct(), DecodeProduct)
	warmed, err := c.WarmFromCache(context.Background())
	require.NoError(t, err)
	assert.False(t, warmed)
}

func TestCatalogWarmFromCacheMissIsNotAnError(t *testing.T) {
	cache := newFakeCache()
	c := New(NullProduct(), DecodeProduct)
	c.SetCache(cache, "missing-key", time.Minute)

	warmed, err := c.WarmFromCache(context.Background())
	require.NoError(t, err)
	assert.False(t, warmed)
}
