package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"AuthCorePlatform/pkg/health"
	"AuthCorePlatform/pkg/logger"
)

// NewServer создает gRPC сервер с журналированием вызовов
func NewServer(log logger.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingUnaryInterceptor(log)))
	return grpc.NewServer(opts...)
}

// LoggingUnaryInterceptor логирует gRPC вызовы с кодом статуса и длительностью
func LoggingUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []logger.Field{
			logger.String("method", info.FullMethod),
			logger.String("code", code.String()),
			logger.Duration("duration", time.Since(start)),
			logger.CtxField(ctx),
		}
		switch code {
		case codes.OK, codes.NotFound, codes.Canceled:
			log.Debug("gRPC call completed", fields...)
		default:
			log.Warn("gRPC call failed", append(fields, logger.Error(err))...)
		}
		return resp, err
	}
}

// HealthReporter отражает состояние зависимостей в стандартном сервисе grpc.health.v1
type HealthReporter struct {
	server   *grpchealth.Server
	checker  health.HealthChecker
	services []string
	interval time.Duration
	logger   logger.Logger
}

// NewHealthReporter создает HealthReporter. Пустое имя сервиса означает состояние сервера в целом.
func NewHealthReporter(checker health.HealthChecker, interval time.Duration, log logger.Logger, services ...string) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthReporter{
		server:   grpchealth.NewServer(),
		checker:  checker,
		services: append([]string{""}, services...),
		interval: interval,
		logger:   log,
	}
}

// Register регистрирует сервис здоровья на gRPC сервере
func (h *HealthReporter) Register(srv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(srv, h.server)
}

// Refresh опрашивает зависимости и обновляет статус
func (h *HealthReporter) Refresh(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	result := h.checker.Check(ctx)

	serving := grpc_health_v1.HealthCheckResponse_SERVING
	if result.Status == health.StatusUnhealthy {
		serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("Service is not serving", logger.Any("dependencies", result.Services))
	}

	for _, name := range h.services {
		h.server.SetServingStatus(name, serving)
	}
	return serving
}

// Run обновляет статус с заданным интервалом до отмены контекста
func (h *HealthReporter) Run(ctx context.Context) {
	h.Refresh(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Shutdown переводит все сервисы в NOT_SERVING перед остановкой
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}
