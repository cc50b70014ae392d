package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prodpulse/prodpulse-backend/internal/logger"
)

// Cache is the fail-open TTL key-value façade. Implementations never surface
// infrastructure errors to callers: a broken cache behaves like an empty one,
// so every read path degrades to live computation.
type Cache interface {
	// Get unmarshals the cached value into dest and reports whether it hit.
	Get(ctx context.Context, key string, dest any) bool
	// Set stores a JSON-serializable value with a TTL, best-effort.
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	// DeleteByPattern removes every key matching a glob pattern, best-effort.
	DeleteByPattern(ctx context.Context, pattern string)
	Close() error
}

type redisCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisCache connects to REDIS_ADDR. Construction is the one place a
// cache failure is reported: past this point everything is best-effort.
func NewRedisCache(log *logger.Logger) (Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisCache{
		log: log.With("service", "RedisCache"),
		rdb: rdb,
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("cache payload unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache payload marshal failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *redisCache) DeleteByPattern(ctx context.Context, pattern string) {
	if c == nil || c.rdb == nil {
		return
	}
	// SCAN instead of KEYS so invalidation never stalls redis on a large
	// keyspace.
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache pattern scan failed", "pattern", pattern, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache pattern delete failed", "pattern", pattern, "error", err)
	}
}

func (c *redisCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
