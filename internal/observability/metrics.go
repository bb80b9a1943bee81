// Package observability provides prometheus instrumentation for the
// workflow engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
	SLABreachesTotal *prometheus.CounterVec
	ActiveSweeps     prometheus.Counter
}

// NewMetrics creates and registers the engine collectors on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_transitions_total",
			Help: "Workflow transition attempts by category and outcome.",
		}, []string{"category", "outcome"}),
		SLABreachesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_sla_breaches_total",
			Help: "SLA breach escalations emitted by category.",
		}, []string{"category"}),
		ActiveSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_sla_sweeps_total",
			Help: "SLA monitor sweeps completed.",
		}),
	}

	reg.MustRegister(m.TransitionsTotal, m.SLABreachesTotal, m.ActiveSweeps)
	return m
}

// RecordTransition increments the transition counter.
func (m *Metrics) RecordTransition(category, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(category, outcome).Inc()
}

// RecordSLABreach increments the breach counter.
func (m *Metrics) RecordSLABreach(category string) {
	if m == nil {
		return
	}
	m.SLABreachesTotal.WithLabelValues(category).Inc()
}

// RecordSweep increments the sweep counter.
func (m *Metrics) RecordSweep() {
	if m == nil {
		return
	}
	m.ActiveSweeps.Inc()
}
