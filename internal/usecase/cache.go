package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/lru"
	"github.com/example/ai-detect/internal/retry"
)

// DefaultCacheCapacity bounds the in-process tier of the remote path.
const DefaultCacheCapacity = lru.DefaultCapacity

// ResultCache stores classification results keyed by the exact image URL.
type ResultCache interface {
	Get(ctx context.Context, url string) (detection.Result, bool)
	Put(ctx context.Context, url string, result detection.Result)
}

// Cache abstracts the Redis operations used by the second cache tier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// MemoryCache is the in-process LRU tier.
type MemoryCache struct {
	entries *lru.Cache[string, detection.Result]
}

// NewMemoryCache returns an LRU holding at most capacity results.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{entries: lru.New[string, detection.Result](capacity)}
}

func (c *MemoryCache) Get(_ context.Context, url string) (detection.Result, bool) {
	return c.entries.Get(url)
}

func (c *MemoryCache) Put(_ context.Context, url string, result detection.Result) {
	c.entries.Put(url, result)
}

// Len reports the number of cached URLs.
func (c *MemoryCache) Len() int { return c.entries.Len() }

// TieredCache consults the in-process LRU first and falls back to Redis. Redis
// failures are logged and treated as misses so that the shared tier never
// fails a classification.
type TieredCache struct {
	memory *MemoryCache
	remote Cache
	ttl    time.Duration
	policy retry.Policy
	logger *zap.Logger
}

// NewTieredCache layers remote behind memory. Entries written to Redis expire after ttl.
func NewTieredCache(memory *MemoryCache, remote Cache, ttl time.Duration, logger *zap.Logger) *TieredCache {
	return &TieredCache{
		memory: memory,
		remote: remote,
		ttl:    ttl,
		policy: retry.DefaultPolicy(),
		logger: logger.Named("result_cache"),
	}
}

func redisKey(url string) string {
	return "classification:" + url
}

func (c *TieredCache) Get(ctx context.Context, url string) (detection.Result, bool) {
	if result, ok := c.memory.Get(ctx, url); ok {
		return result, true
	}

	var raw string
	err := retry.Do(ctx, c.policy, c.logger, "cache.get.result", "", func() error {
		value, err := c.remote.Get(ctx, redisKey(url))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("failed to read shared cache", zap.String("url", url), zap.Error(err))
		}
		return detection.Result{}, false
	}

	var result detection.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Warn("failed to decode cached result", zap.String("url", url), zap.Error(err))
		return detection.Result{}, false
	}
	c.memory.Put(ctx, url, result)
	return result, true
}

func (c *TieredCache) Put(ctx context.Context, url string, result detection.Result) {
	c.memory.Put(ctx, url, result)

	serialized, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("failed to serialize result", zap.Error(err))
		return
	}
	if err := retry.Do(ctx, c.policy, c.logger, "cache.set.result", "", func() error {
		return c.remote.Set(ctx, redisKey(url), string(serialized), c.ttl)
	}); err != nil {
		c.logger.Warn("failed to write shared cache", zap.String("url", url), zap.Error(err))
	}
}
