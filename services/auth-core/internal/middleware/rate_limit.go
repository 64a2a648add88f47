package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/ratelimit"
)

// RateLimitMiddleware ограничивает частоту запросов.
// Ключ - идентификатор субъекта, если запрос уже аутентифицирован, иначе IP адрес.
func RateLimitMiddleware(rateLimiter ratelimit.RateLimiter, limit int, window time.Duration, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + getIP(r)
			if principal, ok := PrincipalFrom(r.Context()); ok {
				key = "principal:" + principal.ID
			}

			limitExceeded, err := rateLimiter.CheckRateLimit(r.Context(), key, limit, window)
			if err != nil {
				log.Error("Rate limiter error, allowing request",
					logger.Error(err),
					logger.String("key", key))
				next.ServeHTTP(w, r)
				return
			}

			if limitExceeded {
				log.Warn("Rate limit exceeded",
					logger.String("key", key),
					logger.Int("limit", limit),
					logger.String("window", window.String()),
					logger.String("path", r.URL.Path))
				apperrors.WriteJSON(w, apperrors.New(apperrors.ErrTooManyRequests, "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getIP извлекает IP адрес клиента
func getIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
