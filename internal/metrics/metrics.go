// Package metrics exposes Prometheus instrumentation for the engine:
// message turns, step execution, event dispatch, conflict replays, and
// the stale-wait sweeper
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parley"

// Event and routing outcome label values
const (
	OutcomeResumed = "resumed"
	OutcomeDropped = "dropped"
	OutcomeError   = "error"

	SourceShortcut   = "shortcut"
	SourceSticky     = "sticky"
	SourceClassifier = "classifier"
	SourceFallback   = "fallback"
)

var (
	// messagesTotal counts handled messages by workflow and the
	// instance status the turn ended in
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total messages handled, by workflow and outcome",
		},
		[]string{"workflow", "outcome"},
	)

	// messageDuration is a histogram of full message turn duration
	messageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Histogram of message turn duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow"},
	)

	// eventsTotal counts dispatched events by type and outcome
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total external events dispatched, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// stepDuration is a histogram of individual step execution duration
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of step executions in seconds",
			Buckets: []float64{
				.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"step"},
	)

	// stepErrorsTotal counts step executions that returned an error
	stepErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_errors_total",
			Help:      "Total step executions that failed",
		},
		[]string{"step"},
	)

	// conflictRetriesTotal counts optimistic-concurrency replays
	conflictRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "Total turns replayed after a version conflict",
		},
	)

	// staleSweepsTotal counts waiting instances abandoned by the sweeper
	staleSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_sweeps_total",
			Help:      "Total stale waiting instances swept to aborted",
		},
	)

	// routingTotal counts how inbound messages found their workflow
	routingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_total",
			Help:      "Total message routings, by decision source",
		},
		[]string{"source"},
	)

	// notificationsTotal counts responses pushed on the live channel
	notificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total notifications published for live delivery",
		},
	)

	// allMetrics is the registration list
	allMetrics = []prometheus.Collector{
		messagesTotal,
		messageDuration,
		eventsTotal,
		stepDuration,
		stepErrorsTotal,
		conflictRetriesTotal,
		staleSweepsTotal,
		routingTotal,
		notificationsTotal,
	}
)

// RecordMessage records one handled message turn
func RecordMessage(workflow, outcome string, seconds float64) {
	messagesTotal.WithLabelValues(workflow, outcome).Inc()
	messageDuration.WithLabelValues(workflow).Observe(seconds)
}

// RecordEvent records one dispatched event
func RecordEvent(eventType, outcome string) {
	eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordStep records one step execution
func RecordStep(step string, seconds float64, failed bool) {
	stepDuration.WithLabelValues(step).Observe(seconds)
	if failed {
		stepErrorsTotal.WithLabelValues(step).Inc()
	}
}

// RecordConflictRetry records an optimistic-concurrency replay
func RecordConflictRetry() {
	conflictRetriesTotal.Inc()
}

// RecordSwept records a sweeper pass that abandoned count instances
func RecordSwept(count int) {
	if count > 0 {
		staleSweepsTotal.Add(float64(count))
	}
}

// RecordRouting records which decision source routed a message
func RecordRouting(source string) {
	routingTotal.WithLabelValues(source).Inc()
}

// RecordNotification records a live-channel publish
func RecordNotification() {
	notificationsTotal.Inc()
}
