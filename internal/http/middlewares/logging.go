package middlewares

import (
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/kawaismp/authgate/internal/observability/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Logging emite una línea por request con método, ruta, status y
// duración. Nunca loguea query strings: ahí viajan el secret y el código.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger.L().Info("http request",
			logger.RequestID(RequestIDFrom(r.Context())),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(sw.status),
			logger.DurationMs(time.Since(start).Milliseconds()),
			logger.ClientIP(ClientIP(r)),
		)
	})
}

// ClientIP resuelve la IP real del request: primer hop de
// X-Forwarded-For si existe, si no RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if addr, err := netip.ParseAddr(first); err == nil {
			return addr.String()
		}
	}
	host := r.RemoteAddr
	if ap, err := netip.ParseAddrPort(host); err == nil {
		return ap.Addr().String()
	}
	return host
}
