package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/metrics"
	"AuthCorePlatform/pkg/validation"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/routing"
	"AuthCorePlatform/services/auth-core/internal/service"
)

// Заголовки, которые шлюз добавляет к пропущенным запросам
const (
	HeaderAuthDuration   = "X-Auth-Duration"
	HeaderBlacklistCheck = "X-Blacklist-Check"
	HeaderAuthDegraded   = "X-Auth-Degraded"
	HeaderLocale         = "X-Locale"
)

// CallbackParam параметр адреса входа с исходным путем
const CallbackParam = "callbackUrl"

// Исходы решения шлюза, используются как значения метрики
const (
	outcomeBypass       = "bypass"
	outcomePublic       = "public"
	outcomeLocale       = "locale"
	outcomeAllowed      = "allowed"
	outcomeLogin        = "redirect_login"
	outcomeUnauthorized = "redirect_unauthorized"
	outcomeLoop         = "loop_detected"
	outcomeCanonical    = "redirect_canonical"
	outcomeRejected     = "rejected"
)

// Authenticator проверяет токен
type Authenticator interface {
	Authenticate(ctx context.Context, tok string) (*service.Authentication, error)
}

// Gateway middleware аутентификации страниц: классифицирует путь, проверяет токен
// и роль, перенаправляет на вход или на страницу отказа, разрывает циклы перенаправлений.
type Gateway struct {
	auth      Authenticator
	router    *routing.Router
	cookies   Cookies
	loopLimit int
	logger    logger.Logger
	metrics   *metrics.Metrics
	validator *validation.Validator
}

// NewGateway создает шлюз
func NewGateway(auth Authenticator, router *routing.Router, cookies Cookies, loopLimit int, log logger.Logger, m *metrics.Metrics) *Gateway {
	if loopLimit <= 0 {
		loopLimit = 2
	}
	return &Gateway{
		auth:      auth,
		router:    router,
		cookies:   cookies,
		loopLimit: loopLimit,
		logger:    log,
		metrics:   m,
		validator: validation.NewValidator(),
	}
}

// Permitted сообщает, разрешен ли путь субъекту. nil означает анонимный запрос.
func (g *Gateway) Permitted(path string, principal *domain.Principal) bool {
	return g.router.Permitted(path, principal)
}

// Middleware возвращает обработчик шлюза
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if !g.canonical(w, r) {
			return
		}
		route := g.router.Classify(r.URL.Path)

		if route.Locale != "" {
			r.Header.Set(HeaderLocale, route.Locale)
			r = r.WithContext(context.WithValue(r.Context(), localeKey, route.Locale))
		}

		switch route.Kind {
		case routing.Bypass:
			g.metrics.ObserveGatewayDecision(route.NamespaceName(), outcomeBypass, 0)
			next.ServeHTTP(w, r)
			return
		case routing.Public:
			g.cookies.ClearLoopCount(w, r)
			g.metrics.ObserveGatewayDecision(route.NamespaceName(), outcomePublic, 0)
			next.ServeHTTP(w, r)
			return
		case routing.Locale:
			g.metrics.ObserveGatewayDecision(route.NamespaceName(), outcomeLocale, 0)
			next.ServeHTTP(w, r)
			return
		}

		g.protect(w, r, next, route, start)
	})
}

// canonical пропускает дальше только канонические пути. Закодированные точки и слэши
// отклоняются, пути с точечными сегментами перенаправляются на очищенный адрес.
func (g *Gateway) canonical(w http.ResponseWriter, r *http.Request) bool {
	escaped := strings.ToLower(r.URL.EscapedPath())
	if strings.Contains(escaped, "%2e") || strings.Contains(escaped, "%2f") || strings.Contains(escaped, "%5c") {
		g.logger.Warn("Rejected encoded path",
			logger.String("path", r.URL.EscapedPath()),
			logger.CtxField(r.Context()))
		g.metrics.ObserveGatewayDecision("none", outcomeRejected, 0)
		apperrors.WriteJSON(w, apperrors.New(apperrors.ErrInvalidRequest, "invalid request path"))
		return false
	}

	clean := routing.Canonical(r.URL.Path)
	if clean == r.URL.Path {
		return true
	}

	target := url.URL{Path: clean, RawQuery: r.URL.RawQuery}
	g.metrics.ObserveGatewayDecision("none", outcomeCanonical, 0)
	http.Redirect(w, r, target.String(), http.StatusPermanentRedirect)
	return false
}

func (g *Gateway) protect(w http.ResponseWriter, r *http.Request, next http.Handler, route routing.Route, start time.Time) {
	ctx, span := g.metrics.StartSpan(r.Context(), "gateway.authenticate",
		attribute.String("namespace", route.NamespaceName()),
		attribute.String("path", route.Path))
	defer span.End()

	namespace := route.NamespaceName()

	loops := LoopCount(r)
	if loops > g.loopLimit {
		g.cookies.ClearLoopCount(w, r)
		g.logger.Error("Redirect loop detected",
			logger.String("path", r.URL.Path),
			logger.Int("redirects", loops),
			logger.CtxField(ctx))
		g.metrics.ObserveGatewayDecision(namespace, outcomeLoop, time.Since(start))
		apperrors.WriteJSON(w, apperrors.New(apperrors.ErrLoopDetected, "too many redirects").WithDetails(r.URL.Path))
		return
	}

	tok, fromCookie := service.TokenFromRequest(r, g.cookies.Name)

	var auth *service.Authentication
	if tok != "" {
		var err error
		auth, err = g.auth.Authenticate(ctx, tok)
		if err != nil {
			g.logger.Debug("Token rejected",
				logger.String("path", r.URL.Path),
				logger.String("reason", rejectReason(err)),
				logger.CtxField(ctx))
			if fromCookie {
				g.cookies.ClearToken(w)
			}
		}
	}

	if auth == nil {
		g.cookies.SetLoopCount(w, loops+1)
		g.metrics.ObserveGatewayDecision(namespace, outcomeLogin, time.Since(start))
		http.Redirect(w, r, g.loginURL(route, r), http.StatusTemporaryRedirect)
		return
	}

	if !route.Namespace.Allows(auth.Principal.Role) {
		g.logger.Warn("Role mismatch",
			logger.String("path", r.URL.Path),
			logger.String("namespace", namespace),
			logger.String("role", string(auth.Principal.Role)),
			logger.String("user_id", auth.Principal.ID),
			logger.CtxField(ctx))
		g.metrics.ObserveGatewayDecision(namespace, outcomeUnauthorized, time.Since(start))
		http.Redirect(w, r, route.UnauthorizedURL(), http.StatusTemporaryRedirect)
		return
	}

	g.cookies.ClearLoopCount(w, r)

	check := "clear"
	if auth.Degraded {
		check = "degraded"
		w.Header().Set(HeaderAuthDegraded, "true")
		g.logger.Warn("Request allowed without blacklist check",
			logger.String("path", r.URL.Path),
			logger.String("user_id", auth.Principal.ID),
			logger.Duration("blacklist_check", auth.BlacklistCheck),
			logger.CtxField(ctx))
	}

	elapsed := time.Since(start)
	w.Header().Set(HeaderBlacklistCheck, check)
	w.Header().Set(HeaderAuthDuration, fmt.Sprintf("%.3f", float64(elapsed.Microseconds())/1000))
	g.metrics.ObserveGatewayDecision(namespace, outcomeAllowed, elapsed)

	next.ServeHTTP(w, r.WithContext(WithAuthentication(ctx, auth)))
}

// loginURL собирает адрес входа с исходным путем в callbackUrl
func (g *Gateway) loginURL(route routing.Route, r *http.Request) string {
	login := route.LoginURL()

	callback := r.URL.RequestURI()
	if err := g.validator.ValidateLocalPath(callback); err != nil {
		return login
	}

	return login + "?" + url.Values{CallbackParam: {callback}}.Encode()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrExpiredToken):
		return "expired"
	case errors.Is(err, domain.ErrBlacklisted):
		return "blacklisted"
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrMalformedToken):
		return "malformed"
	default:
		return "unknown"
	}
}
