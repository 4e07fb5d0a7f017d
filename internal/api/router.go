/**
 * @description
 * This file sets up the HTTP router for the distribution-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * any necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: The /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DistributionRoutes creates and returns a new router for the distribution service.
func DistributionRoutes(h *DistributionHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(MetricsMiddleware)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Group routes that require end-user authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Get("/distributions", h.ListDistributionsHandler)
		r.Get("/distributions/{distributionID}", h.GetDistributionHandler)
		r.Post("/distributions/{distributionID}/claim", h.ClaimDistributionHandler)
	})

	// Server-to-server endpoints guarded by the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/distributions", h.CreateDistributionHandler)
		r.Post("/internal/distributions/{distributionID}/settlement", h.ReportSettlementHandler)
		r.Delete("/internal/distributions/{distributionID}", h.SoftDeleteDistributionHandler)
	})

	return r
}
