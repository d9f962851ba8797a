// Package metrics holds the prometheus collectors of runwatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runwatch/events"
)

// Registry holds every runwatch collector
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		EventsAppended, DuplicateEvents, FilterPasses,
		ReexecutionRequests, RunViews, SubmitDuration,
	)
}

// EventsAppended counts events appended to run logs
var EventsAppended = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runwatch_events_appended_total",
		Help: "Events appended to run event logs.",
	},
	[]string{"kind"},
)

// DuplicateEvents counts start or terminal events dropped by the status engine
var DuplicateEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runwatch_duplicate_events_total",
		Help: "Step events ignored because the step was already started or finished.",
	},
	[]string{"kind"},
)

// FilterPasses counts full log filter recomputations
var FilterPasses = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "runwatch_filter_passes_total",
		Help: "Full recomputations of the filtered log view.",
	},
)

// ReexecutionRequests counts re-execution attempts by outcome
var ReexecutionRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runwatch_reexecution_requests_total",
		Help: "Re-execution requests by outcome.",
	},
	[]string{"outcome"}, // submitted | step_not_found | artifacts_not_persisted | config_invalid | no_submitter | submit_failed
)

// RunViews is the number of live run views
var RunViews = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "runwatch_run_views",
		Help: "Run views currently held in memory.",
	},
)

// SubmitDuration observes how long submissions take
var SubmitDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "runwatch_submit_duration_seconds",
		Help:    "Time spent submitting re-execution requests.",
		Buckets: prometheus.DefBuckets,
	},
)

// CountAppended is an event log listener feeding EventsAppended
func CountAppended(_ int, batch []events.RunEvent) {
	for _, e := range batch {
		EventsAppended.WithLabelValues(string(e.Kind)).Inc()
	}
}

// Handler serves the registry in the prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
