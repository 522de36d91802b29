package cache

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	_, ok := c.Get(ctx, "admin")
	assert.False(t, ok)

	c.Set(ctx, "admin", []string{"clients.read", "clients.write"})
	codes, ok := c.Get(ctx, "admin")
	require.True(t, ok)
	assert.Equal(t, []string{"clients.read", "clients.write"}, codes)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute).(*memoryCache)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(ctx, "partner", []string{"sales.read"})
	now = now.Add(59 * time.Second)
	_, ok := c.Get(ctx, "partner")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(ctx, "partner")
	assert.False(t, ok, "entry must expire once the TTL has elapsed")
}

func TestMemoryCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	c.Set(ctx, "admin", []string{"a"})
	c.Set(ctx, "client", []string{"b"})

	c.Invalidate(ctx, "admin")
	_, ok := c.Get(ctx, "admin")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "client")
	assert.True(t, ok)

	c.Invalidate(ctx, "")
	_, ok = c.Get(ctx, "client")
	assert.False(t, ok)
}

func TestNew_FallsBackToMemory(t *testing.T) {
	c := New(nil, time.Minute)
	_, isMemory := c.(*memoryCache)
	assert.True(t, isMemory)
}

func TestNewRedisClient_EmptyURL(t *testing.T) {
	client, err := NewRedisClient(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestRedisCache_LogsWriteFailures(t *testing.T) {
	// nothing listens on port 1, so every command fails fast
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	var buf bytes.Buffer
	c := newRedisCache(rdb, time.Minute, slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	c.Invalidate(ctx, "partner")
	assert.Contains(t, buf.String(), "permission cache: invalidate failed")
	assert.Contains(t, buf.String(), "role=partner")

	buf.Reset()
	c.Invalidate(ctx, "")
	assert.Contains(t, buf.String(), "permission cache: scan failed")

	buf.Reset()
	c.Set(ctx, "admin", []string{"clients.read"})
	assert.Contains(t, buf.String(), "permission cache: set failed")

	_, ok := c.Get(ctx, "admin")
	assert.False(t, ok)
}
