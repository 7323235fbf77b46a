/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the review frontend

ROUTE GROUPS:
  /api/severance, /api/arrears/*   Calculations
  /api/extractions/*               Extraction decoding
  /api/reference/*                 Reference lookups and validation
  /api/admin/*                     Reference appends
  /api/indexes/*                   Index rate tables
  /api/calculations/*              Audit log
  /health                          Liveness + store ping
  /metrics                         Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/legalcalc/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures the parts of the router that vary per deployment.
type RouterOptions struct {
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{CalculationIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Calculation routes
		r.Post("/severance", h.CalculateSeverance)
		r.Route("/arrears", func(r chi.Router) {
			r.Post("/", h.CalculateArrears)
			r.Post("/facts", h.CalculateArrearsFromFacts)
		})

		// Extraction routes
		r.Route("/extractions", func(r chi.Router) {
			r.Post("/labor", h.ExtractLaborFacts)
			r.Post("/benefit", h.ExtractBenefitFacts)
		})

		// Reference routes
		r.Route("/reference", func(r chi.Router) {
			r.Get("/minimum-wage", h.GetMinimumWage)
			r.Get("/ceiling", h.GetBenefitCeiling)
			r.Post("/validate", h.ValidateBenefit)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reference", h.AppendReference)
		})

		// Index routes
		r.Get("/indexes/{name}/rates", h.GetIndexRates)

		// Audit routes
		r.Route("/calculations", func(r chi.Router) {
			r.Get("/", h.ListCalculations)
			r.Get("/{id}", h.GetCalculation)
		})
	})

	return r
}
