package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware logs every request on completion and stores a request-scoped
// logger in the context for handlers to pick up via FromContext.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			requestLogger := logger.WithFields(map[string]interface{}{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"remote":     r.RemoteAddr,
			})
			ctx := context.WithValue(r.Context(), ctxLoggerKey{}, &CtxLogger{requestLogger})

			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := map[string]interface{}{
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			}
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				requestLogger.Error("Request completed", fields)
			case ww.Status() >= http.StatusBadRequest:
				requestLogger.Warn("Request completed", fields)
			default:
				requestLogger.Info("Request completed", fields)
			}
		})
	}
}
