// Package metrics define las métricas Prometheus del engine. Paquete
// standalone para evitar ciclos de import entre auth y HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_login_attempts_total",
		Help: "Intentos de login por resultado (success|failure|error)",
	}, []string{"result"})

	LoginsByMethod = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_logins_total",
		Help: "Logins completados por método (password|bridge|session)",
	}, []string{"method"})

	LinkRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_link_requests_total",
		Help: "Requests al endpoint /link por outcome",
	}, []string{"outcome"})

	SessionsRestored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_sessions_restored_total",
		Help: "Reconexiones silenciosas vía session cache",
	})

	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authgate_active_connections",
		Help: "Conexiones con estado de login vivo",
	})
)

// Register registra las métricas en el registry dado (default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginAttempts, LoginsByMethod, LinkRequests, SessionsRestored, ActiveConnections,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
