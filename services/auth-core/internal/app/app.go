// Package app собирает ядро аутентификации из конфигурации: хранилище, черный список,
// сессии, сервис и приемники аудита. Используется сервисом и утилитой revocationctl.
package app

import (
	"context"
	"fmt"
	"time"

	"AuthCorePlatform/pkg/config"
	"AuthCorePlatform/pkg/connection"
	"AuthCorePlatform/pkg/database"
	"AuthCorePlatform/pkg/health"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/metrics"
	"AuthCorePlatform/pkg/rabbitmq"
	"AuthCorePlatform/pkg/ratelimit"
	pkgredis "AuthCorePlatform/pkg/redis"
	"AuthCorePlatform/services/auth-core/internal/audit"
	"AuthCorePlatform/services/auth-core/internal/pkg/token"
	"AuthCorePlatform/services/auth-core/internal/repository/postgres"
	"AuthCorePlatform/services/auth-core/internal/revocation"
	"AuthCorePlatform/services/auth-core/internal/routing"
	"AuthCorePlatform/services/auth-core/internal/service"
	"AuthCorePlatform/services/auth-core/internal/session"
	"AuthCorePlatform/services/auth-core/internal/store"
)

// Core собранное ядро и его зависимости
type Core struct {
	Config    *config.Config
	Store     store.Store
	Tokens    *token.Manager
	Blacklist *revocation.BlacklistStore
	Sessions  *session.Store
	Router    *routing.Router
	Service   *service.Service
	Audit     *audit.Multi
	Limiter   ratelimit.RateLimiter
	Health    *health.DependencyHealthChecker

	closers []func()
}

// Build подключается к внешним зависимостям и собирает ядро.
// Без Redis используется хранилище в памяти процесса: отзыв действует только в этом экземпляре.
// Приемники аудита необязательны, их недоступность не мешает запуску.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics, version string) (*Core, error) {
	tokens, err := token.NewManager(cfg.Token.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	c := &Core{
		Config: cfg,
		Tokens: tokens,
		Router: routing.NewRouter(cfg.Gateway),
		Audit:  audit.NewMulti(log).Add("log", audit.NewLogRecorder(log)),
		Health: health.NewDependencyHealthChecker(version, 2*time.Second),
	}

	opTimeout := config.Duration(cfg.Store.OpTimeout, store.DefaultOpTimeout)
	if cfg.Redis.Enabled {
		client, err := pkgredis.Connect(ctx, pkgredis.FromAppConfig(cfg.Redis))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.onClose(func() { _ = client.Close() })

		c.Store = store.NewRedisStore(client.Client, opTimeout, m)
		c.Limiter = ratelimit.NewRedisRateLimiter(client.Client)
		log.Info("Using redis store", logger.String("addr", cfg.Redis.Addr), logger.Duration("op_timeout", opTimeout))
	} else {
		memory := store.NewMemoryStore()
		c.onClose(func() { _ = memory.Close() })

		c.Store = memory
		c.Limiter = ratelimit.NewMemoryRateLimiter()
		log.Warn("Redis is disabled, using in-memory store: revocations are not shared between instances")
	}
	c.Health.Register("store", true, c.Store.Ping)

	retry := connection.StoreWriteRetryConfig(cfg.Store.WriteRetries)
	c.Blacklist = revocation.NewBlacklistStore(c.Store, log, revocation.WithRetry(retry), revocation.WithMetrics(m))
	c.Sessions = session.NewStore(c.Store, log, session.WithRetry(retry))
	c.Service = service.NewAuthService(tokens, c.Blacklist, c.Sessions, c.Router, cfg.Cookie.Name, log)

	if cfg.Database.Enabled {
		c.attachDatabase(ctx, cfg.Database, log)
	}
	if cfg.RabbitMQ.Enabled {
		c.attachRabbitMQ(ctx, cfg.RabbitMQ, log)
	}

	return c, nil
}

func (c *Core) attachDatabase(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) {
	db, err := database.Connect(ctx, database.FromAppConfig(cfg))
	if err != nil {
		log.Error("Audit database is unavailable, admin actions will not be persisted", logger.Error(err))
		return
	}
	if err := db.Migrate(ctx, postgres.Migrations...); err != nil {
		log.Error("Failed to migrate audit database", logger.Error(err))
		db.Close()
		return
	}
	c.onClose(db.Close)

	c.Audit.Add("postgres", audit.NewRepositoryRecorder(postgres.NewAdminActionRepository(db.Pool)))
	c.Health.Register("postgres", false, db.HealthCheck)
	log.Info("Audit database attached", logger.String("host", cfg.Host), logger.String("database", cfg.Name))
}

func (c *Core) attachRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, log logger.Logger) {
	rcfg := rabbitmq.FromAppConfig(cfg)
	conn, err := rabbitmq.Connect(ctx, rcfg)
	if err != nil {
		log.Error("RabbitMQ is unavailable, audit events will not be published", logger.Error(err))
		return
	}
	c.onClose(func() { _ = conn.Close() })

	c.Audit.Add("rabbitmq", audit.NewEventRecorder(rabbitmq.NewProducer(conn, rcfg), rcfg.RoutingKey))
	c.Health.Register("rabbitmq", false, conn.HealthCheck)
	log.Info("Audit events attached", logger.String("exchange", rcfg.Exchange))
}

func (c *Core) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Close освобождает подключения в обратном порядке
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
