// Package metrics exposes the prometheus collectors of the risk engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWithPrefix("riskzone_", registry)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

	ZoneRecalculations = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "recalculations_total",
			Help: "Zone recalculations by change type and outcome",
		},
		[]string{"change_type", "outcome"},
	)

	ZoneRecalculationLatency = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recalculation_latency_ms",
			Help:    "Latency of a single zone recalculation in milliseconds",
			Buckets: latencyBuckets,
		},
	)

	BatchSize = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_cells",
			Help:    "Number of cells submitted per batch recalculation",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500},
		},
	)

	RouteAnalyses = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_analyses_total",
			Help: "Route corridor analyses by status and overall risk level",
		},
		[]string{"status", "risk_level"},
	)

	ScoreCacheLookups = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_cache_lookups_total",
			Help: "Score cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
}

// ObserveRecalculation records one zone recalculation
func ObserveRecalculation(changeType string, err error, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	ZoneRecalculations.WithLabelValues(changeType, outcome).Inc()
	ZoneRecalculationLatency.Observe(float64(elapsed.Microseconds()) / 1000.0)
}

// Registry returns the registry all collectors are attached to
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
