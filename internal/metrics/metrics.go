// Package metrics exposes Prometheus collectors for the logic nodes.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teclab-at/logic-nodes/internal/node"
)

const namespace = "logic_nodes"

// Metrics groups the collectors used across nodes.
type Metrics struct {
	GrantAttempts    *prometheus.CounterVec
	Polls            *prometheus.CounterVec
	PollsSkipped     *prometheus.CounterVec
	PollDuration     prometheus.Histogram
	DeliveryAttempts *prometheus.CounterVec
	DeliveryOutcomes *prometheus.CounterVec
	OutputWrites     *prometheus.CounterVec
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		GrantAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_grant_attempts_total",
				Help:      "OAuth2 grant requests by grant type and result",
			},
			[]string{"grant", "result"},
		),
		Polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_polls_total",
				Help:      "Device status polls by result",
			},
			[]string{"node", "result"},
		),
		PollsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_polls_skipped_total",
				Help:      "Poll triggers dropped because a poll was already in flight",
			},
			[]string{"node"},
		),
		PollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "status_poll_duration_seconds",
				Help:      "Duration of device list requests",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DeliveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_attempts_total",
				Help:      "Transport send attempts by node and result",
			},
			[]string{"node", "result"},
		),
		DeliveryOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_outcomes_total",
				Help:      "Final delivery job outcomes by node",
			},
			[]string{"node", "outcome"},
		),
		OutputWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_writes_total",
				Help:      "Node output values that changed",
			},
			[]string{"node", "output"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.GrantAttempts,
		m.Polls,
		m.PollsSkipped,
		m.PollDuration,
		m.DeliveryAttempts,
		m.DeliveryOutcomes,
		m.OutputWrites,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// GrantAttempt counts one grant request.
func (m *Metrics) GrantAttempt(grant string, ok bool) {
	if m == nil {
		return
	}
	m.GrantAttempts.WithLabelValues(grant, result(ok)).Inc()
}

// Poll counts a finished poll. kind is "success" or the error kind.
func (m *Metrics) Poll(nodeName, kind string, seconds float64) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(nodeName, kind).Inc()
	m.PollDuration.Observe(seconds)
}

// PollSkipped counts a trigger dropped by the single-flight guard.
func (m *Metrics) PollSkipped(nodeName string) {
	if m == nil {
		return
	}
	m.PollsSkipped.WithLabelValues(nodeName).Inc()
}

// DeliveryAttempt counts one transport send.
func (m *Metrics) DeliveryAttempt(nodeName string, ok bool) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.WithLabelValues(nodeName, result(ok)).Inc()
}

// DeliveryOutcome counts a finished delivery job.
func (m *Metrics) DeliveryOutcome(nodeName string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	m.DeliveryOutcomes.WithLabelValues(nodeName, outcome).Inc()
}

// Emit implements node.Sink by counting output writes.
func (m *Metrics) Emit(nodeName string, out node.Output) {
	if m == nil {
		return
	}
	m.OutputWrites.WithLabelValues(nodeName, out.Name).Inc()
}
