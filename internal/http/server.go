// Package http arma el router y el servidor del API de vinculación.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kawaismp/authgate/internal/app"
	"github.com/kawaismp/authgate/internal/http/handlers"
	"github.com/kawaismp/authgate/internal/http/middlewares"
)

// NewRouter cablea middlewares y rutas. El rate limit por IP envuelve
// solo /link; /readyz y /metrics quedan fuera para no romper probes.
func NewRouter(c *app.Container) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.RequestID)
	r.Use(middlewares.Logging)
	if len(c.Cfg.Server.CORSAllowedOrigins) > 0 {
		r.Use(middlewares.CORS(c.Cfg.Server.CORSAllowedOrigins))
	}

	link := handlers.NewLinkHandler(c)
	r.Group(func(g chi.Router) {
		g.Use(middlewares.RateLimit(c.Limiter, c.Cfg.Rate.Link.Limit))
		g.Get("/link", link)
		g.Post("/link", link)
	})

	r.Get("/readyz", handlers.NewReadyzHandler(c))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// NewServer construye el http.Server con timeouts sanos para un API chico
// detrás de un proxy.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Shutdown cierra el server con gracia acotada.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
