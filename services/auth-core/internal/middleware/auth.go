package middleware

import (
	"net/http"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/service"
)

// AuthMiddleware проверяет токен для JSON эндпоинтов.
// В отличие от Gateway не перенаправляет, а отвечает 401.
func AuthMiddleware(auth Authenticator, cookieName string, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, _ := service.TokenFromRequest(r, cookieName)

			result, err := auth.Authenticate(r.Context(), tok)
			if err != nil {
				log.Debug("Request is not authenticated",
					logger.String("path", r.URL.Path),
					logger.String("reason", rejectReason(err)),
					logger.CtxField(r.Context()))
				apperrors.WriteJSON(w, apperrors.Wrap(err, apperrors.ErrUnauthorized, "authentication required"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthentication(r.Context(), result)))
		})
	}
}
