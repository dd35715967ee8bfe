// Package app wires application components and startup helpers.
//
// It builds the HTTP surface around the health monitor and owns the
// periodic recovery sweeper that worker binaries run alongside processing.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/esurv/flowqueue/internal/adapter/httpserver"
	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the health HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", srv.HealthHandler())
	r.Get("/health/ready", srv.ReadyHandler())
	r.Get("/health/live", srv.LiveHandler())

	// The detailed report and metrics scrape are the expensive endpoints;
	// rate limit them so a misconfigured prober cannot hammer the store.
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		gr.Get("/health/detailed", srv.DetailedHandler())
		gr.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			promhttp.Handler().ServeHTTP(w, r)
		})
	})

	r.NotFound(httpserver.NotFoundHandler())

	return httpserver.SecurityHeaders(r)
}
