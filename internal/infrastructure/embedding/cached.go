package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/database/redis"
)

// CachedEmbedder memoizes query vectors in Redis. Concurrent requests for
// the same text share one backend call.
type CachedEmbedder struct {
	next     Embedder
	cache    redis.Cache
	ttl      time.Duration
	observer CacheObserver
}

// CacheKeyPrefix namespaces query vectors inside the shared cache.
const CacheKeyPrefix = "emb:"

// CacheObserver is told whether each lookup was served from the cache.
type CacheObserver interface {
	RecordCacheAccess(cache string, hit bool)
}

func NewCachedEmbedder(next Embedder, cache redis.Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache, ttl: ttl}
}

// WithObserver sets the hit/miss observer and returns c.
func (c *CachedEmbedder) WithObserver(o CacheObserver) *CachedEmbedder {
	c.observer = o
	return c
}

func (c *CachedEmbedder) Model() string { return c.next.Model() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var v []float32
	var loaded atomic.Bool
	err := c.cache.GetOrSet(ctx, c.key(text), &v, c.ttl, func(ctx context.Context) (interface{}, error) {
		loaded.Store(true)
		return c.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	if c.observer != nil {
		c.observer.RecordCacheAccess("embedding", !loaded.Load())
	}
	return v, nil
}

// Flush drops every cached query vector. Run it after changing the
// embedding model or dimension.
func Flush(ctx context.Context, cache redis.Cache) (int64, error) {
	return cache.DeleteByPrefix(ctx, CacheKeyPrefix)
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.next.Model() + "\x00" + text))
	return CacheKeyPrefix + hex.EncodeToString(sum[:])
}
