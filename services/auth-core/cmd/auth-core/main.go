package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AuthCorePlatform/pkg/config"
	pkggrpc "AuthCorePlatform/pkg/grpc"
	pkglogger "AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/metrics"
	"AuthCorePlatform/services/auth-core/internal/app"
	httpHandler "AuthCorePlatform/services/auth-core/internal/handler/http"
	"AuthCorePlatform/services/auth-core/internal/middleware"
	"AuthCorePlatform/services/auth-core/internal/scheduler"
)

const (
	serviceName    = "auth-core"
	serviceVersion = "1.0.0"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Создаем логгер
	logger, err := pkglogger.NewLogger(pkglogger.Options{
		Environment: cfg.Environment,
		Level:       cfg.Logger.Level,
		Format:      cfg.Logger.Format,
		ServiceName: serviceName,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Error syncing logger: %v", err)
		}
	}()

	logger.Info("Starting Auth Core", pkglogger.String("environment", cfg.Environment))

	// Трассировка
	shutdownTracing, err := metrics.InitializeOpenTelemetry(serviceName, serviceVersion)
	if err != nil {
		logger.Warn("Failed to initialize OpenTelemetry", pkglogger.Error(err))
	}

	prometheusMetrics := metrics.NewMetrics(serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.Build(ctx, cfg, logger, prometheusMetrics, serviceVersion)
	if err != nil {
		logger.Error("Failed to build auth core", pkglogger.Error(err))
		os.Exit(1)
	}
	defer core.Close()

	cookies := middleware.Cookies{
		Name:    cfg.Cookie.Name,
		Domain:  cfg.Cookie.Domain,
		MaxAge:  config.Duration(cfg.Cookie.MaxAge, 7*24*time.Hour),
		Secure:  cfg.SecureCookies(),
		LoopTTL: config.Duration(cfg.Gateway.LoopCookieTTL, time.Minute),
	}

	// HTTP обработчики административного API, выхода и служебных эндпоинтов
	api := httpHandler.NewHandler(httpHandler.Dependencies{
		Auth:                   core.Service,
		Audit:                  core.Audit,
		Limiter:                core.Limiter,
		Health:                 core.Health,
		Metrics:                prometheusMetrics,
		Cookies:                cookies,
		AdminRequestsPerMinute: cfg.Admin.RequestsPerMinute,
		Logger:                 logger,
	})

	upstream, err := upstreamHandler(cfg.Gateway.UpstreamURL, logger)
	if err != nil {
		logger.Error("Invalid upstream URL", pkglogger.String("upstream", cfg.Gateway.UpstreamURL), pkglogger.Error(err))
		os.Exit(1)
	}
	gateway := middleware.NewGateway(core.Service, core.Router, cookies, cfg.Gateway.LoopLimit, logger, prometheusMetrics)
	pages := gateway.Middleware(upstream)

	mux := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.Handles(r) {
			api.ServeHTTP(w, r)
			return
		}
		pages.ServeHTTP(w, r)
	})

	// Применяем middleware
	var handler http.Handler = mux
	handler = prometheusMetrics.Middleware(handler)
	handler = middleware.SecurityHeadersMiddleware(cfg.SecureCookies())(handler)
	handler = middleware.LoggingMiddleware(logger)(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
		IdleTimeout:  120 * time.Second,
	}

	// gRPC сервер отдает только состояние здоровья
	grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("Failed to listen on gRPC port", pkglogger.Int("port", cfg.GRPC.Port), pkglogger.Error(err))
		os.Exit(1)
	}
	grpcServer := pkggrpc.NewServer(logger)
	reporter := pkggrpc.NewHealthReporter(core.Health, 10*time.Second, logger, serviceName)
	reporter.Register(grpcServer)
	go reporter.Run(ctx)

	go func() {
		logger.Info("Starting gRPC server", pkglogger.String("address", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server failed", pkglogger.Error(err))
		}
	}()

	// Периодическая статистика черного списка
	stats := scheduler.NewScheduler(core.Service, cfg.Scheduler.StatsSpec, logger)
	if err := stats.Start(ctx); err != nil {
		logger.Error("Failed to start stats scheduler", pkglogger.Error(err))
	}

	go func() {
		logger.Info("Starting HTTP server", pkglogger.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", pkglogger.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Auth Core...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second))
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", pkglogger.Error(err))
	}

	reporter.Shutdown()
	grpcServer.GracefulStop()

	if err := stats.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop stats scheduler", pkglogger.Error(err))
	}
	cancel()

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown tracing", pkglogger.Error(err))
		}
	}

	logger.Info("Auth Core stopped")
}

// upstreamHandler проксирует пропущенные шлюзом запросы к фронтенду.
// Без адреса запросы завершаются пустым ответом.
func upstreamHandler(rawURL string, logger pkglogger.Logger) (http.Handler, error) {
	if rawURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), nil
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %s", rawURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("Upstream request failed",
			pkglogger.String("path", r.URL.Path),
			pkglogger.Error(err),
			pkglogger.CtxField(r.Context()))
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}
