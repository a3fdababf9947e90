// Package cache is an optional Redis read cache. Every method is nil-safe so
// callers can run without Redis; the database stays authoritative.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/utils"
)

type Cache struct {
	rdb *redis.Client
	log *logger.Logger
	ttl time.Duration
}

// NewFromEnv returns nil (not an error) when REDIS_ADDR is unset.
func NewFromEnv(log *logger.Logger) *Cache {
	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		log.Info("REDIS_ADDR not set, running without cache")
		return nil
	}
	ttlSec := utils.GetEnvAsInt("REDIS_CACHE_TTL_SECONDS", 60, log)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: utils.GetEnv("REDIS_PASSWORD", "", nil),
	})
	return &Cache{
		rdb: rdb,
		log: log.With("platform", "Cache"),
		ttl: time.Duration(ttlSec) * time.Second,
	}
}

// Get returns ("", false) on miss or any error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("Cache get failed", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, key, val string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.log.Debug("Cache set failed", "key", key, "error", err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Debug("Cache invalidate failed", "keys", keys, "error", err)
	}
}
