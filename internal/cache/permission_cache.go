package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const permKeyPrefix = "backoffice:perms:"

// PermissionCache stores the permission codes granted to each role name
type PermissionCache interface {
	Get(ctx context.Context, role string) ([]string, bool)
	Set(ctx context.Context, role string, codes []string)
	// Invalidate drops one role, or every role when role is empty
	Invalidate(ctx context.Context, role string)
}

// New returns a redis-backed cache when rdb is set, otherwise an in-process one
func New(rdb *redis.Client, ttl time.Duration) PermissionCache {
	if rdb == nil {
		return NewMemory(ttl)
	}
	return newRedisCache(rdb, ttl, slog.Default())
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func newRedisCache(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *redisCache {
	return &redisCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *redisCache) Get(ctx context.Context, role string) ([]string, bool) {
	raw, err := c.rdb.Get(ctx, permKeyPrefix+role).Bytes()
	if err != nil {
		return nil, false
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, false
	}
	return codes, true
}

func (c *redisCache) Set(ctx context.Context, role string, codes []string) {
	raw, err := json.Marshal(codes)
	if err != nil {
		c.log.Error("permission cache: encode failed", "role", role, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, permKeyPrefix+role, raw, c.ttl).Err(); err != nil {
		c.log.Warn("permission cache: set failed", "role", role, "error", err)
	}
}

// Invalidate failures are logged; stale entries then live until the TTL expires
func (c *redisCache) Invalidate(ctx context.Context, role string) {
	if role != "" {
		if err := c.rdb.Del(ctx, permKeyPrefix+role).Err(); err != nil {
			c.log.Error("permission cache: invalidate failed", "role", role, "ttl", c.ttl, "error", err)
		}
		return
	}

	var keys []string
	iter := c.rdb.Scan(ctx, 0, permKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Error("permission cache: scan failed", "ttl", c.ttl, "error", err)
		return
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.log.Error("permission cache: invalidate failed", "keys", len(keys), "ttl", c.ttl, "error", err)
		}
	}
}

type memoryEntry struct {
	codes     []string
	expiresAt time.Time
}

type memoryCache struct {
	entries sync.Map // role -> memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory is the fallback used when no redis URL is configured
func NewMemory(ttl time.Duration) PermissionCache {
	return &memoryCache{ttl: ttl, now: time.Now}
}

func (c *memoryCache) Get(_ context.Context, role string) ([]string, bool) {
	v, ok := c.entries.Load(role)
	if !ok {
		return nil, false
	}
	entry := v.(memoryEntry)
	if !c.now().Before(entry.expiresAt) {
		c.entries.Delete(role)
		return nil, false
	}
	return entry.codes, true
}

func (c *memoryCache) Set(_ context.Context, role string, codes []string) {
	c.entries.Store(role, memoryEntry{codes: codes, expiresAt: c.now().Add(c.ttl)})
}

func (c *memoryCache) Invalidate(_ context.Context, role string) {
	if role != "" {
		c.entries.Delete(role)
		return
	}
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}
