// Package telemetry exposes the client's prometheus metrics: decisions
// served (by source and outcome), event-queue depth/drops, suppression-
// cache occupancy, and rule-set load outcomes. There is no inbound HTTP
// server in this client, so the teacher's chi-route-aware Middleware is
// dropped; the CounterVec/HistogramVec/Gauge registration pattern itself
// is kept.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagkit_decisions_total",
			Help: "Flag decisions served, by resolution source and outcome.",
		},
		[]string{"source", "outcome"}, // source: local|remote ; outcome: enabled|disabled
	)

	RuleSetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagkit_ruleset_loads_total",
			Help: "Rule-set fetch outcomes, by result.",
		},
		[]string{"result"}, // fresh|not_modified|quota_limited|auth_failed|error
	)

	CaptureQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flagkit_capture_queue_depth",
		Help: "Events currently buffered awaiting flush.",
	})

	CaptureEventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagkit_capture_events_dropped_total",
		Help: "Events dropped due to a full capture queue.",
	})

	SuppressionCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flagkit_suppression_cache_size",
		Help: "Live entries in the $feature_flag_called suppression cache.",
	})

	DecisionCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flagkit_decision_cache_size",
		Help: "Entries currently held in the per-request decision cache.",
	})
)

// Init registers all metrics with the default prometheus registry. Call
// once at startup; safe to skip entirely if the embedding application
// doesn't expose a metrics endpoint.
func Init() {
	prometheus.MustRegister(
		DecisionsTotal,
		RuleSetLoadsTotal,
		CaptureQueueDepth,
		CaptureEventsDroppedTotal,
		SuppressionCacheSize,
		DecisionCacheSize,
	)
}
