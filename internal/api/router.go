// Package api provides the HTTP API for AirPulse.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/airpulse/airpulse/internal/api/handler"
	"github.com/airpulse/airpulse/internal/api/middleware"
	"github.com/airpulse/airpulse/internal/coordinator"
	"github.com/airpulse/airpulse/internal/history"
	"github.com/airpulse/airpulse/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version      string
	BuildTime    string
	Logger       zerolog.Logger
	ServiceName  string
	Metrics      *middleware.Metrics
	Coordinators *coordinator.Registry
	Resolver     handler.SiteResolver
	History      history.Repository
	Health       *resilience.Registry
	DB           handler.DatabasePinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "airpulse-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Health, cfg.Coordinators, cfg.DB)
	sitesHandler := handler.NewSitesHandler(cfg.Coordinators, cfg.Resolver, cfg.History)

	// Create rate limit middleware for different endpoint categories
	refreshRateLimit := middleware.RateLimitByIP(middleware.RefreshRateLimit)     // 10 req/min
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// Probe endpoints (public, unthrottled)
	r.Get("/healthz", opsHandler.HealthCheck)
	r.Get("/readyz", opsHandler.ReadinessCheck)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)

		r.Route("/sites", func(r chi.Router) {
			// Site lookups proxy the upstream provider - strict rate limiting
			r.With(expensiveRateLimit).Get("/", sitesHandler.ListSites)
			r.With(expensiveRateLimit).Get("/nearest", sitesHandler.NearestSite)

			r.Route("/{siteID}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/observation", sitesHandler.GetObservation)
				r.With(standardRateLimit).Get("/status", sitesHandler.GetStatus)
				r.With(standardRateLimit).Get("/history", sitesHandler.GetHistory)

				// Manual refresh hits the upstream provider
				r.With(refreshRateLimit).Post("/refresh", sitesHandler.Refresh)
			})
		})
	})

	return r
}
