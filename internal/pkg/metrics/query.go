package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backendSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spanquery_backend_selections_total",
			Help: "Number of calls routed to each storage backend",
		},
		[]string{"backend"},
	)

	flagLookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spanquery_flag_lookup_failures_total",
			Help: "Feature flag lookups that failed and were treated as disabled",
		},
		[]string{"flag"},
	)

	overfetchRounds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spanquery_overfetch_rounds",
			Help:    "Candidate batches fetched per over-fetch loop",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
		[]string{"operation"},
	)

	windowFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spanquery_window_fallbacks_total",
			Help: "Span listings that fell back from the default window to all-time",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spanquery_events_published_total",
			Help: "Span events published to subscribers",
		},
		[]string{"event"},
	)
)

// RecordBackendSelection counts a call served by backend
func RecordBackendSelection(backend string) {
	backendSelections.WithLabelValues(backend).Inc()
}

// RecordFlagLookupFailure counts a degraded flag lookup
func RecordFlagLookupFailure(flag string) {
	flagLookupFailures.WithLabelValues(flag).Inc()
}

// RecordOverfetchRounds records how many batches a loop needed
func RecordOverfetchRounds(operation string, rounds int) {
	overfetchRounds.WithLabelValues(operation).Observe(float64(rounds))
}

// RecordWindowFallback counts a default-window fallback
func RecordWindowFallback() {
	windowFallbacks.Inc()
}

// RecordEventPublished counts a published span event
func RecordEventPublished(event string) {
	eventsPublished.WithLabelValues(event).Inc()
}
