// Package metrics defines Prometheus metrics for rule dispatch and workflow enrollments.
//
// Metric naming follows Prometheus conventions:
//   - dealflow_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the engine collectors and the registry they are registered with.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	EventsDispatched      *prometheus.CounterVec
	RulesMatched          *prometheus.CounterVec
	ExecutionsTotal       *prometheus.CounterVec
	ActionDuration        *prometheus.HistogramVec
	DispatchDuration      prometheus.Histogram
	EnrollmentTransitions *prometheus.CounterVec
	SweepsTotal           *prometheus.CounterVec
}

// New creates the collectors on a fresh registry together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_events_dispatched_total",
				Help: "Total CRM events dispatched by event type.",
			},
			[]string{"event_type"},
		),
		RulesMatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_rules_matched_total",
				Help: "Total rules whose trigger matched an event, by trigger type.",
			},
			[]string{"trigger_type"},
		),
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_rule_executions_total",
				Help: "Total rule executions by action type and status.",
			},
			[]string{"action_type", "status"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealflow_action_duration_seconds",
				Help:    "Duration of action execution in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"action_type"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dealflow_dispatch_duration_seconds",
				Help:    "Duration of a full event dispatch in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		EnrollmentTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_enrollment_transitions_total",
				Help: "Total workflow node transitions by node type.",
			},
			[]string{"node_type"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_sweeps_total",
				Help: "Total scheduler sweeps by kind and result.",
			},
			[]string{"kind", "result"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsDispatched,
		m.RulesMatched,
		m.ExecutionsTotal,
		m.ActionDuration,
		m.DispatchDuration,
		m.EnrollmentTransitions,
		m.SweepsTotal,
	)

	return m
}

func (m *Metrics) RecordDispatch(eventType string, duration time.Duration) {
	if m == nil {
		return
	}

	m.EventsDispatched.WithLabelValues(eventType).Inc()
	m.DispatchDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordMatch(triggerType string) {
	if m == nil {
		return
	}

	m.RulesMatched.WithLabelValues(triggerType).Inc()
}

func (m *Metrics) RecordExecution(actionType, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.ExecutionsTotal.WithLabelValues(actionType, status).Inc()

	if duration > 0 {
		m.ActionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordTransition(nodeType string) {
	if m == nil {
		return
	}

	m.EnrollmentTransitions.WithLabelValues(nodeType).Inc()
}

func (m *Metrics) RecordSweep(kind string, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.SweepsTotal.WithLabelValues(kind, result).Inc()
}
