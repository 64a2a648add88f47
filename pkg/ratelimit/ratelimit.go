package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter интерфейс для ограничения частоты запросов
type RateLimiter interface {
	// CheckRateLimit проверяет лимит для заданного ключа.
	// Возвращает true, если лимит превышен.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter реализация RateLimiter с использованием Redis.
// Фиксированное окно: INCR и установка TTL выполняются одним скриптом,
// поэтому конкурентные запросы не проскакивают мимо счетчика.
type RedisRateLimiter struct {
	client redis.Cmdable
	prefix string
}

var incrWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// NewRedisRateLimiter создает новый экземпляр RedisRateLimiter
func NewRedisRateLimiter(client redis.Cmdable) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: "rate_limit:"}
}

// CheckRateLimit проверяет, не превышен ли лимит запросов для заданного ключа
func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	current, err := incrWindowScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return current > int64(limit), nil
}

// MemoryRateLimiter реализация RateLimiter в памяти процесса для режима без Redis
type MemoryRateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimiter создает новый экземпляр MemoryRateLimiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{now: time.Now, windows: make(map[string]*window)}
}

// CheckRateLimit проверяет, не превышен ли лимит запросов для заданного ключа
func (m *MemoryRateLimiter) CheckRateLimit(_ context.Context, key string, limit int, period time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		m.windows[key] = w
	}
	w.count++

	return w.count > limit, nil
}
