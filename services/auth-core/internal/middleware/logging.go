package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"AuthCorePlatform/pkg/logger"
)

// HeaderTraceID заголовок с идентификатором запроса
const HeaderTraceID = "X-Trace-ID"

// LoggingMiddleware логирует все HTTP запросы
func LoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Идентификатор от балансировщика сохраняется
			traceID := r.Header.Get(HeaderTraceID)
			if traceID == "" {
				traceID = uuid.NewString()
			}

			r = r.WithContext(logger.WithTraceID(r.Context(), traceID))
			w.Header().Set(HeaderTraceID, traceID)

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("remote_addr", r.RemoteAddr),
				logger.Int("status_code", wrapped.statusCode),
				logger.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				logger.String("trace_id", traceID),
			}
			if wrapped.statusCode >= http.StatusInternalServerError {
				log.Error("Completed request", fields...)
				return
			}
			log.Info("Completed request", fields...)
		})
	}
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

// Flush нужен для потоковых ответов через обратный прокси
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
