/**
 * @description
 * Prometheus metrics for the distribution-service API. Counters and histograms
 * are registered with the default registry via promauto and exposed on the
 * /metrics endpoint.
 */

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distribution_http_requests_total",
		Help: "Total HTTP requests handled, by method, route pattern, and status code.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "distribution_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	claimOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distribution_claim_outcomes_total",
		Help: "Claim attempts by outcome (claimed, replayed, conflict, rejected).",
	}, []string{"outcome"})

	settlementOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distribution_settlement_outcomes_total",
		Help: "Settlement reports by outcome (paid, duplicate, failed, rejected).",
	}, []string{"outcome"})
)

// MetricsMiddleware records request counts and latencies per chi route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chiRoutePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// chiRoutePattern returns the matched route pattern so metrics stay low
// cardinality; falls back to the raw path when no route matched.
func chiRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func recordClaimOutcome(outcome string) {
	claimOutcomesTotal.WithLabelValues(outcome).Inc()
}

func recordSettlementOutcome(outcome string) {
	settlementOutcomesTotal.WithLabelValues(outcome).Inc()
}
