// Package mocks содержит testify моки общих интерфейсов pkg
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"AuthCorePlatform/pkg/health"
	"AuthCorePlatform/pkg/logger"
)

// MockRateLimiter имитирует pkg/ratelimit.RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

// MockHealthChecker имитирует pkg/health.HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) Check(ctx context.Context) *health.HealthStatus {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*health.HealthStatus)
}

// MockLogger имитирует pkg/logger.Logger. Вызовы без ожиданий не проверяются.
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, fields ...logger.Field) {
	m.record("Debug", msg)
}

func (m *MockLogger) Info(msg string, fields ...logger.Field) {
	m.record("Info", msg)
}

func (m *MockLogger) Warn(msg string, fields ...logger.Field) {
	m.record("Warn", msg)
}

func (m *MockLogger) Error(msg string, fields ...logger.Field) {
	m.record("Error", msg)
}

func (m *MockLogger) With(fields ...logger.Field) logger.Logger {
	return m
}

func (m *MockLogger) Sync() error {
	return nil
}

// record регистрирует вызов только если на метод заданы ожидания
func (m *MockLogger) record(method, msg string) {
	for _, call := range m.ExpectedCalls {
		if call.Method == method {
			m.MethodCalled(method, msg)
			return
		}
	}
}
