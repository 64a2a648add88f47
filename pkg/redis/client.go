package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"AuthCorePlatform/pkg/config"
)

// Client представляет подключение к Redis
type Client struct {
	Client *redis.Client
}

// Config представляет конфигурацию Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	// Connection pool settings
	PoolSize    int
	MinIdleConn int
	// Retry settings
	MaxRetries    int
	RetryInterval time.Duration
	// Health check
	HealthCheck time.Duration
	// Таймауты отдельной команды
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewConfig создает конфигурацию по умолчанию
func NewConfig() *Config {
	return &Config{
		Addr:          "localhost:6379",
		Password:      "",
		DB:            0,
		PoolSize:      10,
		MinIdleConn:   2,
		MaxRetries:    3,
		RetryInterval: 1 * time.Second,
		HealthCheck:   30 * time.Second,
		ReadTimeout:   time.Second,
		WriteTimeout:  time.Second,
	}
}

// FromAppConfig переводит секцию redis общей конфигурации в параметры клиента
func FromAppConfig(cfg config.RedisConfig) *Config {
	c := NewConfig()
	c.Addr = cfg.Addr
	c.Password = cfg.Password
	c.DB = cfg.DB
	if cfg.PoolSize > 0 {
		c.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConn > 0 {
		c.MinIdleConn = cfg.MinIdleConn
	}
	if cfg.MaxRetries > 0 {
		c.MaxRetries = cfg.MaxRetries
	}
	c.RetryInterval = config.Duration(cfg.RetryInterval, c.RetryInterval)
	c.HealthCheck = config.Duration(cfg.HealthCheck, c.HealthCheck)
	return c
}

// Options возвращает параметры go-redis клиента
func (c *Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConn,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		// Таймаут для получения соединения из пула
		PoolTimeout:        4 * time.Second,
		IdleCheckFrequency: c.HealthCheck,
	}
}

// Connect устанавливает подключение к Redis с retry логикой
func Connect(ctx context.Context, config *Config) (*Client, error) {
	var lastErr error

	for i := 0; i <= config.MaxRetries; i++ {
		client := redis.NewClient(config.Options())

		if err := client.Ping(ctx).Err(); err != nil {
			lastErr = fmt.Errorf("failed to ping redis: %w", err)
			client.Close()
			if i < config.MaxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(config.RetryInterval):
				}
			}
			continue
		}

		return &Client{Client: client}, nil
	}

	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", config.MaxRetries, lastErr)
}

// Close закрывает подключение к Redis
func (r *Client) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// HealthCheck проверяет состояние подключения к Redis
func (r *Client) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}

	return r.Client.Ping(ctx).Err()
}

// GetConfig возвращает конфигурацию из переменных окружения.
// Используется утилитами, которые не читают общий конфигурационный файл.
func GetConfig() *Config {
	config := NewConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Password = password
	}
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		config.DB = db
	}
	if size, err := strconv.Atoi(os.Getenv("REDIS_POOL_SIZE")); err == nil && size > 0 {
		config.PoolSize = size
	}
	if idle, err := strconv.Atoi(os.Getenv("REDIS_MIN_IDLE_CONN")); err == nil && idle >= 0 {
		config.MinIdleConn = idle
	}
	if retries, err := strconv.Atoi(os.Getenv("REDIS_MAX_RETRIES")); err == nil && retries >= 0 {
		config.MaxRetries = retries
	}
	if interval, err := time.ParseDuration(os.Getenv("REDIS_RETRY_INTERVAL")); err == nil {
		config.RetryInterval = interval
	}
	if check, err := time.ParseDuration(os.Getenv("REDIS_HEALTH_CHECK")); err == nil {
		config.HealthCheck = check
	}

	return config
}
