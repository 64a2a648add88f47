package http

import (
	"net/http"
	"time"

	"AuthCorePlatform/pkg/health"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/metrics"
	"AuthCorePlatform/pkg/ratelimit"
	"AuthCorePlatform/pkg/validation"
	"AuthCorePlatform/services/auth-core/internal/audit"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/middleware"
	"AuthCorePlatform/services/auth-core/internal/service"
)

// Dependencies зависимости HTTP обработчиков
type Dependencies struct {
	Auth    service.AuthService
	Audit   audit.Recorder
	Limiter ratelimit.RateLimiter
	Health  health.HealthChecker
	Metrics *metrics.Metrics
	Cookies middleware.Cookies
	// AdminRequestsPerMinute лимит запросов одного администратора
	AdminRequestsPerMinute int
	Logger                 logger.Logger
}

// Handler структура для управления HTTP обработчиками
type Handler struct {
	mux         *http.ServeMux
	auth        service.AuthService
	audit       audit.Recorder
	limiter     ratelimit.RateLimiter
	adminLimit  int
	adminWindow time.Duration
	health      health.HealthChecker
	metrics     *metrics.Metrics
	cookies     middleware.Cookies
	validator   *validation.Validator
	logger      logger.Logger
}

// NewHandler создает новый экземпляр Handler
func NewHandler(deps Dependencies) *Handler {
	recorder := deps.Audit
	if recorder == nil {
		recorder = audit.NewLogRecorder(deps.Logger)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryRateLimiter()
	}
	limit := deps.AdminRequestsPerMinute
	if limit <= 0 {
		limit = 60
	}

	h := &Handler{
		mux:         http.NewServeMux(),
		auth:        deps.Auth,
		audit:       recorder,
		limiter:     limiter,
		adminLimit:  limit,
		adminWindow: time.Minute,
		health:      deps.Health,
		metrics:     deps.Metrics,
		cookies:     deps.Cookies,
		validator:   validation.NewValidator(),
		logger:      deps.Logger,
	}

	h.setupRoutes()

	return h
}

// ServeHTTP реализует интерфейс http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handles сообщает, обслуживает ли обработчик путь. Остальные пути уходят в шлюз.
func (h *Handler) Handles(r *http.Request) bool {
	_, pattern := h.mux.Handler(r)
	return pattern != ""
}

// setupRoutes настраивает маршруты для приложения
func (h *Handler) setupRoutes() {
	// Административный API
	h.mux.HandleFunc("/admin/auth/blacklist-stats", h.handleAdmin(domain.ActionViewStats, h.handleBlacklistStats))
	h.mux.HandleFunc("/admin/auth/blacklist-token", h.handleAdmin(domain.ActionBlacklistToken, h.handleBlacklistToken))
	h.mux.HandleFunc("/admin/auth/blacklist-user-tokens", h.handleAdmin(domain.ActionBlacklistUser, h.handleBlacklistUserTokens))
	h.mux.HandleFunc("/admin/auth/unblacklist-token", h.handleAdmin(domain.ActionUnblacklist, h.handleUnblacklistToken))

	// Сессия пользователя
	h.mux.HandleFunc("/auth/logout", h.handleLogout)
	h.mux.Handle("/auth/session", middleware.AuthMiddleware(h.auth, h.cookies.Name, h.logger)(http.HandlerFunc(h.handleSession)))

	// Health check роуты
	if h.health != nil {
		h.mux.HandleFunc("/health", health.Handler(h.health))
		h.mux.HandleFunc("/ready", health.ReadyHandler(h.health))
	}
	h.mux.HandleFunc("/live", health.LiveHandler())
	if h.metrics != nil {
		h.mux.Handle("/metrics", h.metrics.GetHandler())
	}
}
