package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/domain"
)

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (c *countingSource) BlacklistStats(context.Context) (domain.BlacklistStats, error) {
	n := c.calls.Add(1)
	if c.err != nil {
		return domain.BlacklistStats{}, c.err
	}
	return domain.BlacklistStats{Total: int(n), ApproxMemory: "64 B"}, nil
}

func TestRunOnce(t *testing.T) {
	source := &countingSource{}
	s := NewScheduler(source, "", logger.NewNop())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, s.Last().Total)
	assert.Equal(t, DefaultStatsSpec, s.spec)

	source.err = errors.New("store down")
	assert.Error(t, s.RunOnce(context.Background()))
	// Последняя успешная статистика сохраняется
	assert.Equal(t, 1, s.Last().Total)
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingSource{}, "every minute", logger.NewNop())
	assert.Error(t, s.Start(context.Background()))
}

func TestStartStop(t *testing.T) {
	source := &countingSource{}
	s := NewScheduler(source, "@every 1s", logger.NewNop())

	require.NoError(t, s.Start(context.Background()))
	// Повторный запуск не добавляет задачу
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return source.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))

	calls := source.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, calls, source.calls.Load())
}
