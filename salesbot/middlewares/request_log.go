package middlewares

import (
	"context"
	"net/http"
	"time"

	"salesbot/salesbot/utils/logging"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger writes one line per request to request.log and exposes the
// chi request id to logging.LogDuration.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		if reqID != "" {
			r = r.WithContext(context.WithValue(r.Context(), logging.RequestIDKey, reqID))
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.RequestLogger.Info("request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}
