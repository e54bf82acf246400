// Package metrics defines the Prometheus instrumentation for the
// stream broker and the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors used across the core.
type Metrics struct {
	EventsDelivered   prometheus.Counter
	EventsUndelivered prometheus.Counter
	StreamWriteErrors prometheus.Counter
	ActiveStreams     prometheus.Gauge

	RunsStarted   *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	RunsFailed    *prometheus.CounterVec
	StepRetries   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pingup",
			Subsystem: "broker",
			Name:      "events_delivered_total",
			Help:      "Events pushed to a connected recipient stream.",
		}),
		EventsUndelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pingup",
			Subsystem: "broker",
			Name:      "events_undelivered_total",
			Help:      "Events with no registered recipient stream.",
		}),
		StreamWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pingup",
			Subsystem: "broker",
			Name:      "stream_write_errors_total",
			Help:      "Stream writes that failed and evicted the handle.",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pingup",
			Subsystem: "broker",
			Name:      "active_streams",
			Help:      "Currently registered stream handles.",
		}),
		RunsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingup",
			Subsystem: "workflow",
			Name:      "runs_started_total",
			Help:      "Workflow runs created per definition.",
		}, []string{"workflow"}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingup",
			Subsystem: "workflow",
			Name:      "runs_completed_total",
			Help:      "Workflow runs that reached completed state.",
		}, []string{"workflow"}),
		RunsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingup",
			Subsystem: "workflow",
			Name:      "runs_failed_total",
			Help:      "Workflow runs that exhausted their retries.",
		}, []string{"workflow"}),
		StepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingup",
			Subsystem: "workflow",
			Name:      "step_retries_total",
			Help:      "Step failures that re-parked a run for retry.",
		}, []string{"workflow"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsDelivered,
			m.EventsUndelivered,
			m.StreamWriteErrors,
			m.ActiveStreams,
			m.RunsStarted,
			m.RunsCompleted,
			m.RunsFailed,
			m.StepRetries,
		)
	}
	return m
}

// NewNop returns unregistered collectors for tests.
func NewNop() *Metrics {
	return New(nil)
}
