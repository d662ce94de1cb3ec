package middleware

import (
	"net/http"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/auth"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Actor copies the X-User-ID header into the request context.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get(auth.HeaderUserID); userID != "" {
			r = r.WithContext(auth.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs every request once it has been served. 5xx responses are
// logged at error level.
func RequestLogger(log logger.ZapLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			}
			if userID := auth.GetUserID(r.Context()); userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.Error("http request", fields...)
			default:
				log.Info("http request", fields...)
			}
		})
	}
}
