// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RouteQueries counts route queries by kind (route, alternatives) and
	// outcome (ok, not_found, unreachable, no_path, timeout, error).
	RouteQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_route_queries_total",
		Help: "Route queries by kind and outcome",
	}, []string{"kind", "outcome"})

	// RouteDuration tracks planning latency.
	RouteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_route_duration_seconds",
		Help:    "Route planning duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"kind"})

	// RouteSettled tracks nodes settled per search.
	RouteSettled = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegis_route_settled_nodes",
		Help:    "Nodes settled per shortest-path search",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})

	// IncidentsReported counts accepted incident reports by severity.
	IncidentsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_incidents_reported_total",
		Help: "Accepted incident reports by severity",
	}, []string{"severity"})

	// IncidentsPurged counts incidents removed after the retention window.
	IncidentsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_incidents_purged_total",
		Help: "Incidents physically removed after expiry",
	})

	// RiskRecompute tracks risk recomputation latency by scope
	// (incident, full).
	RiskRecompute = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_risk_recompute_duration_seconds",
		Help:    "Risk recomputation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"scope"})

	// RiskEdgesUpdated counts edge risk values published.
	RiskEdgesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_risk_edges_updated_total",
		Help: "Edge risk values published to the graph store",
	})

	// DataQualityErrors counts risk values clamped to zero.
	DataQualityErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_risk_data_quality_errors_total",
		Help: "Risk values that were NaN, infinite or negative and clamped to zero",
	})

	// GeocodeLookups counts geocoder lookups by source and outcome.
	GeocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_geocode_lookups_total",
		Help: "Geocoder lookups by source and outcome",
	}, []string{"source", "outcome"})

	// SOSDispatched counts SOS notifications by outcome.
	SOSDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_sos_dispatched_total",
		Help: "SOS notifications by outcome",
	}, []string{"outcome"})

	// HTTPRequests counts HTTP responses by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_http_requests_total",
		Help: "HTTP responses by route pattern and status code",
	}, []string{"pattern", "code"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
