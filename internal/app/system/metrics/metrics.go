// Package metrics holds the Prometheus instruments used across the service.
// All collectors are registered with the default registry in init, so
// mounting Handler is enough to expose them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SlugAllocations counts slug allocations by operation (create, edit)
	// and path (direct, suffixed, raced).
	SlugAllocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratarecipe_slug_allocations_total",
			Help: "Slug allocations by operation and path taken.",
		}, []string{"op", "path"})

	// SlugPlaceholderRepairs counts recipes renamed off a placeholder slug.
	SlugPlaceholderRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratarecipe_slug_placeholder_repairs_total",
			Help: "Recipes finalized after being left on a placeholder slug.",
		})

	PropagationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratarecipe_propagation_runs_total",
			Help: "Display-name propagation runs by final status.",
		}, []string{"status"})

	// PropagationWrites counts comment writes by outcome (done, failed, skipped, retried).
	PropagationWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratarecipe_propagation_writes_total",
			Help: "Comment author-name writes by outcome.",
		}, []string{"outcome"})

	PropagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratarecipe_propagation_duration_seconds",
			Help:    "Wall time of a propagation pass.",
			Buckets: prometheus.DefBuckets,
		})
)

func init() {
	prometheus.MustRegister(
		SlugAllocations,
		SlugPlaceholderRepairs,
		PropagationRuns,
		PropagationWrites,
		PropagationDuration,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
