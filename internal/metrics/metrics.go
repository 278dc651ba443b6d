// Package metrics holds the Prometheus collectors for the synchronization
// engine, the Discord client, the mapping store and watch mode.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine Metrics
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoops_sync_passes_total",
			Help: "Total number of role create/sync/delete passes",
		},
		[]string{"operation", "outcome"}, // outcome: "ok", "partial", "error"
	)

	SyncPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discoops_sync_pass_duration_seconds",
			Help:    "Duration of role create/sync/delete passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	MemberMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoops_member_mutations_total",
			Help: "Total number of role membership mutations by result",
		},
		[]string{"operation", "result"}, // result: "ok", "hierarchy", "transient", "unresolvable"
	)

	InterestedExcluded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "discoops_interested_excluded_total",
			Help: "Interested users dropped because they are not in the membership cache",
		},
	)

	// Platform Metrics
	PlatformRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoops_platform_requests_total",
			Help: "Total number of Discord REST calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: "ok", "not_found", "forbidden", "unknown_member", "transient"
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "discoops_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Mapping Store Metrics
	MappingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoops_mapping_operations_total",
			Help: "Total number of mapping store operations",
		},
		[]string{"backend", "operation", "outcome"},
	)

	// Watch Metrics
	WatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoops_watch_runs_total",
			Help: "Total number of scheduled re-sync runs",
		},
		[]string{"outcome"},
	)

	WatchLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discoops_watch_last_success_timestamp_seconds",
			Help: "Unix time of the last scheduled re-sync run without errors",
		},
	)

	WatchMappedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discoops_watch_mapped_events",
			Help: "Number of mapped events seen by the last scheduled re-sync run",
		},
	)
)

// RecordPass records the outcome and duration of one engine pass.
func RecordPass(operation string, duration time.Duration, failures int, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case failures > 0:
		outcome = "partial"
	}
	SyncPasses.WithLabelValues(operation, outcome).Inc()
	SyncPassDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMutation records one membership mutation; result is "ok" or a failure kind.
func RecordMutation(operation, result string) {
	MemberMutations.WithLabelValues(operation, result).Inc()
}

// RecordPlatformRequest records a Discord REST call.
func RecordPlatformRequest(endpoint, outcome string) {
	PlatformRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordMappingOperation records a mapping store call.
func RecordMappingOperation(backend, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	MappingOperations.WithLabelValues(backend, operation, outcome).Inc()
}

// RecordWatchRun records a scheduled re-sync run.
func RecordWatchRun(mapped int, err error) {
	WatchMappedEvents.Set(float64(mapped))
	if err != nil {
		WatchRuns.WithLabelValues("error").Inc()
		return
	}
	WatchRuns.WithLabelValues("ok").Inc()
	WatchLastSuccess.SetToCurrentTime()
}
