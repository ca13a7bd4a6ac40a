package middleware

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger copies chi's request id into the logging context and logs one
// line per request. It must run after chimw.RequestID.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimw.GetReqID(ctx); id != "" {
			ctx = logger.WithRequestID(ctx, id)
			r = r.WithContext(ctx)
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger.FromContext(ctx).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
