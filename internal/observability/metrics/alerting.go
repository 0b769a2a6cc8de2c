// Package metrics exposes Prometheus instruments for faultwatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faultwatch"

// AlertingMetrics instruments rule evaluation. A nil *AlertingMetrics
// records nothing.
type AlertingMetrics struct {
	RuleEvaluations   *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	QueryErrors       prometheus.Counter
	StaleAlerts       prometheus.Counter
	PersistFailures   prometheus.Counter
	DeviceRunsSkipped *prometheus.CounterVec
	DeviceRunDuration prometheus.Histogram
	LogEntriesPurged  prometheus.Counter
}

// NewAlertingMetrics registers the alerting instruments on reg.
func NewAlertingMetrics(reg prometheus.Registerer) *AlertingMetrics {
	f := promauto.With(reg)
	return &AlertingMetrics{
		RuleEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "rule_evaluations_total",
			Help:      "Rule evaluations by outcome status",
		}, []string{"status"}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "state_transitions_total",
			Help:      "Persisted alert transitions by resulting state",
		}, []string{"state"}),
		QueryErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "query_errors_total",
			Help:      "Rules skipped because their query could not be compiled or run",
		}),
		StaleAlerts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "stale_alerts_total",
			Help:      "Live alerts deleted because their rule no longer applies",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "persist_failures_total",
			Help:      "Alert transitions that could not be stored",
		}),
		DeviceRunsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "device_runs_skipped_total",
			Help:      "Device runs aborted before evaluating rules, by reason",
		}, []string{"reason"}),
		DeviceRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "device_run_duration_seconds",
			Help:      "Time to evaluate every rule of one device",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		LogEntriesPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "log_entries_purged_total",
			Help:      "Alert log entries removed by retention cleanup",
		}),
	}
}

func (m *AlertingMetrics) RecordEvaluation(status string) {
	if m == nil {
		return
	}
	m.RuleEvaluations.WithLabelValues(status).Inc()
}

func (m *AlertingMetrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *AlertingMetrics) RecordQueryError() {
	if m == nil {
		return
	}
	m.QueryErrors.Inc()
}

func (m *AlertingMetrics) RecordStale() {
	if m == nil {
		return
	}
	m.StaleAlerts.Inc()
}

func (m *AlertingMetrics) RecordPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *AlertingMetrics) RecordSkippedRun(reason string) {
	if m == nil {
		return
	}
	m.DeviceRunsSkipped.WithLabelValues(reason).Inc()
}

func (m *AlertingMetrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.DeviceRunDuration.Observe(d.Seconds())
}

func (m *AlertingMetrics) RecordPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.LogEntriesPurged.Add(float64(n))
}
