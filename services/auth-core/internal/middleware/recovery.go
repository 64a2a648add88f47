package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/pkg/logger"
)

// RecoveryMiddleware обрабатывает паники в обработчиках HTTP
func RecoveryMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				// Прерванный прокси ответ обрабатывает сам net/http
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				log.Error("Panic recovered in HTTP handler",
					logger.Any("panic", recovered),
					logger.String("stack_trace", string(debug.Stack())),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.CtxField(r.Context()))

				apperrors.WriteJSON(w, apperrors.New(apperrors.ErrInternal, "Internal server error").
					WithDetails(fmt.Sprintf("panic: %v", recovered)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
