package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the attribute lifecycle.
type Metrics struct {
	Created             *prometheus.CounterVec
	Successions         prometheus.Counter
	DeletionTransitions *prometheus.CounterVec
}

// New creates and registers all attribute metrics.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peermesh_attributes_created_total",
			Help: "Attributes created, by role",
		}, []string{"role"}),
		Successions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peermesh_attribute_successions_total",
			Help: "Completed attribute successions",
		}),
		DeletionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peermesh_attribute_deletion_transitions_total",
			Help: "Deletion status transitions, by resulting status",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncCreated(role string) {
	m.Created.WithLabelValues(role).Inc()
}

func (m *Metrics) IncSuccessions() {
	m.Successions.Inc()
}

func (m *Metrics) IncDeletionTransition(status string) {
	m.DeletionTransitions.WithLabelValues(status).Inc()
}
