package middlewares

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kawaismp/authgate/internal/http/httpx"
	"github.com/kawaismp/authgate/internal/observability/logger"
	"github.com/kawaismp/authgate/internal/rate"
)

// RateLimit corta por IP de origen usando el limiter configurado. Ante
// error del backend de rate (p. ej. redis caído) deja pasar: preferimos
// servir a frenar por infraestructura.
func RateLimit(l rate.Limiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), "link:"+ClientIP(r))
			if err != nil {
				logger.L().Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+1)))
				// Mismo sobre JSON que las respuestas del handler.
				httpx.Fail(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
