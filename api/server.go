/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboard frontends

ROUTE GROUPS:
  /api/*         Read-only query endpoints
  /metrics       Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The API is read-only; all writes happen
  through the CLI pipeline.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/landshift/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a router with all routes configured. A nil registry
// disables the /metrics endpoint.
func NewRouter(h *Handler, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/scenarios", h.ListScenarios)
		r.Get("/time-steps", h.ListTimeSteps)
		r.Get("/net-change", h.NetChange)
		r.Get("/compare", h.Compare)

		r.Route("/transitions", func(r chi.Router) {
			r.Get("/major", h.MajorTransitions)
		})
		r.Route("/counties", func(r chi.Router) {
			r.Get("/top", h.TopCounties)
		})
	})

	if reg != nil {
		r.Method("GET", "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return r
}
