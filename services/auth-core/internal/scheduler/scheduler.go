// Package scheduler выполняет фоновые задачи сервиса по расписанию cron.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/domain"
)

// DefaultStatsSpec расписание обновления статистики черного списка по умолчанию
const DefaultStatsSpec = "@every 1m"

// StatsSource источник статистики черного списка. Сбор статистики обновляет метрики.
type StatsSource interface {
	BlacklistStats(ctx context.Context) (domain.BlacklistStats, error)
}

// Scheduler периодически обновляет статистику черного списка
type Scheduler struct {
	source  StatsSource
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	logger  logger.Logger

	mu        sync.Mutex
	isRunning bool
	entryID   cron.EntryID
	last      domain.BlacklistStats
}

// NewScheduler создает новый экземпляр Scheduler
func NewScheduler(source StatsSource, spec string, log logger.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultStatsSpec
	}
	cronLog := cronLogger{log: log}
	return &Scheduler{
		source:  source,
		cron:    cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		spec:    spec,
		timeout: 30 * time.Second,
		logger:  log,
	}
}

// Start регистрирует задачу и запускает планировщик
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.spec, func() {
		_ = s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", s.spec, err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true

	s.logger.Info("Scheduler started",
		logger.String("stats_spec", s.spec),
		logger.CtxField(ctx))
	return nil
}

// Stop останавливает планировщик и ждет завершения выполняющейся задачи
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped", logger.CtxField(ctx))
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timeout", logger.CtxField(ctx))
		return ctx.Err()
	}
}

// RunOnce собирает статистику черного списка
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	stats, err := s.source.BlacklistStats(ctx)
	if err != nil {
		s.logger.Warn("Failed to refresh blacklist stats",
			logger.Error(err),
			logger.Duration("duration", time.Since(start)))
		return err
	}

	s.mu.Lock()
	s.last = stats
	s.mu.Unlock()

	s.logger.Debug("Blacklist stats refreshed",
		logger.Int("total", stats.Total),
		logger.Int("expiring_soon", stats.ExpiringSoon),
		logger.String("memory", stats.ApproxMemory),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// Last возвращает последнюю собранную статистику
func (s *Scheduler) Last() domain.BlacklistStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// cronLogger передает сообщения cron в журнал сервиса
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: "+msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []interface{}) []logger.Field {
	result := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		result = append(result, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return result
}
