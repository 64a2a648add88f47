package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Metrics представляет систему метрик сервиса.
// Все методы допускают nil получатель, чтобы компоненты можно было собирать без метрик.
type Metrics struct {
	// HTTP
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec

	// Аутентификация и отзыв токенов
	GatewayDecisions *prometheus.CounterVec
	AuthDuration     *prometheus.HistogramVec
	BlacklistChecks  *prometheus.CounterVec
	BlacklistSize    *prometheus.GaugeVec
	StoreErrors      *prometheus.CounterVec
	AdminActions     *prometheus.CounterVec

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`

	registry prometheus.Gatherer
}

// NewMetrics создает систему метрик в глобальном реестре Prometheus
func NewMetrics(serviceName string) *Metrics {
	return NewMetricsWithRegistry(serviceName, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry создает систему метрик в указанном реестре
func NewMetricsWithRegistry(serviceName string, registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	namespace := strings.ReplaceAll(serviceName, "-", "_")

	m := &Metrics{
		RequestCount: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		)),
		RequestDuration: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)),
		ErrorsCount: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total number of HTTP errors",
			},
			[]string{"method", "route", "error_type"},
		)),
		GatewayDecisions: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "decisions_total",
				Help:      "Gateway decisions by namespace and outcome",
			},
			[]string{"namespace", "outcome"},
		)),
		AuthDuration: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "auth_duration_seconds",
				Help:      "Time spent authenticating a protected request",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"namespace"},
		)),
		BlacklistChecks: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "blacklist",
				Name:      "checks_total",
				Help:      "Blacklist lookups by result (clear, blacklisted, degraded)",
			},
			[]string{"result"},
		)),
		BlacklistSize: register(registerer, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "blacklist",
				Name:      "entries",
				Help:      "Number of blacklist entries",
			},
			[]string{"state"},
		)),
		StoreErrors: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Key-value store failures by operation",
			},
			[]string{"operation"},
		)),
		AdminActions: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admin",
				Name:      "actions_total",
				Help:      "Administrative revocation actions by type and result",
			},
			[]string{"action", "result"},
		)),
		Tracer:   otel.Tracer(serviceName),
		registry: gatherer,
	}

	return m
}

// register регистрирует коллектор; если он уже зарегистрирован, возвращает существующий
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RouteLabel сводит путь запроса к метке с ограниченной кардинальностью
func RouteLabel(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}

// Middleware создает middleware для сбора метрик
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.Tracer.Start(r.Context(), "http "+r.Method)
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start).Seconds()
		route := RouteLabel(r.URL.Path)

		m.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(duration)

		if wrapped.statusCode >= 400 {
			errorType := "client_error"
			if wrapped.statusCode >= 500 {
				errorType = "server_error"
			}
			m.ErrorsCount.WithLabelValues(r.Method, route, errorType).Inc()
		}

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", wrapped.statusCode),
			attribute.Float64("http.duration", duration),
		)
	})
}

// StartSpan начинает спан трассировки
func (m *Metrics) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if m == nil || m.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// ObserveGatewayDecision учитывает решение шлюза и время аутентификации
func (m *Metrics) ObserveGatewayDecision(namespace, outcome string, authDuration time.Duration) {
	if m == nil {
		return
	}
	m.GatewayDecisions.WithLabelValues(namespace, outcome).Inc()
	if authDuration > 0 {
		m.AuthDuration.WithLabelValues(namespace).Observe(authDuration.Seconds())
	}
}

// IncBlacklistCheck учитывает результат проверки черного списка
func (m *Metrics) IncBlacklistCheck(result string) {
	if m == nil {
		return
	}
	m.BlacklistChecks.WithLabelValues(result).Inc()
}

// IncStoreError учитывает ошибку хранилища
func (m *Metrics) IncStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// IncAdminAction учитывает действие администратора
func (m *Metrics) IncAdminAction(action, result string) {
	if m == nil {
		return
	}
	m.AdminActions.WithLabelValues(action, result).Inc()
}

// SetBlacklistSize обновляет размер черного списка
func (m *Metrics) SetBlacklistSize(total, expiringSoon int) {
	if m == nil {
		return
	}
	m.BlacklistSize.WithLabelValues("total").Set(float64(total))
	m.BlacklistSize.WithLabelValues("expiring_soon").Set(float64(expiringSoon))
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InitializeOpenTelemetry инициализирует OpenTelemetry и возвращает функцию остановки провайдера
func InitializeOpenTelemetry(serviceName, version string) (func(context.Context) error, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	))
	if err != nil {
		return nil, err
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(0.1))),
		tracesdk.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
