package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

// TestWithRetry_SucceedsAfterFailures проверяет успешное выполнение после нескольких ошибок
func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestWithRetry_Exhausted проверяет ошибку после исчерпания попыток
func TestWithRetry_Exhausted(t *testing.T) {
	cause := errors.New("store down")
	calls := 0
	err := WithRetry(context.Background(), fastConfig(2), func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, calls)
}

// TestWithRetry_Permanent проверяет, что неповторяемая ошибка возвращается сразу
func TestWithRetry_Permanent(t *testing.T) {
	cause := errors.New("malformed")
	calls := 0
	err := WithRetry(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.Equal(t, cause, err)
	assert.Equal(t, 1, calls)
}

// TestWithRetry_ContextCanceled проверяет остановку по контексту
func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	err := WithRetry(ctx, cfg, func(ctx context.Context) error {
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

// TestCalculateDelay проверяет экспоненциальный рост и ограничение задержки
func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 10*time.Millisecond, calculateDelay(1, cfg))
	assert.Equal(t, 20*time.Millisecond, calculateDelay(2, cfg))
	assert.Equal(t, 50*time.Millisecond, calculateDelay(5, cfg))

	cfg.Jitter = true
	for i := 0; i < 20; i++ {
		d := calculateDelay(2, cfg)
		assert.GreaterOrEqual(t, d, 15*time.Millisecond)
		assert.LessOrEqual(t, d, 25*time.Millisecond)
	}
}
