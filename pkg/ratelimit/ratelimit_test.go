package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limited, err := limiter.CheckRateLimit(ctx, "admin-1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, limited, "request %d should pass", i+1)
	}

	limited, _ := limiter.CheckRateLimit(ctx, "admin-1", 3, time.Minute)
	assert.True(t, limited)

	// Другой ключ считается отдельно
	limited, _ = limiter.CheckRateLimit(ctx, "admin-2", 3, time.Minute)
	assert.False(t, limited)

	// Новое окно сбрасывает счетчик
	now = now.Add(time.Minute)
	limited, _ = limiter.CheckRateLimit(ctx, "admin-1", 3, time.Minute)
	assert.False(t, limited)
}

func TestRedisRateLimiter(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(context.Background(), "rate_limit:"+key)

	limiter := NewRedisRateLimiter(client)
	for i := 0; i < 2; i++ {
		limited, err := limiter.CheckRateLimit(context.Background(), key, 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, limited)
	}
	limited, err := limiter.CheckRateLimit(context.Background(), key, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, limited)

	ttl := client.PTTL(context.Background(), "rate_limit:"+key).Val()
	assert.Greater(t, ttl, time.Duration(0))
}
