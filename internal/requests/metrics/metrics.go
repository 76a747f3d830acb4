package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the request engine.
type Metrics struct {
	Created   *prometheus.CounterVec
	Decided   *prometheus.CounterVec
	Completed prometheus.Counter
	Expired   prometheus.Counter
}

// New creates and registers all request metrics.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peermesh_requests_created_total",
			Help: "Local requests created, by direction",
		}, []string{"direction"}),
		Decided: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peermesh_requests_decided_total",
			Help: "Incoming requests decided, by decision",
		}, []string{"decision"}),
		Completed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peermesh_requests_completed_total",
			Help: "Local requests completed",
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peermesh_requests_expired_total",
			Help: "Local requests expired on read",
		}),
	}
}

func (m *Metrics) IncCreated(direction string) {
	m.Created.WithLabelValues(direction).Inc()
}

func (m *Metrics) IncDecided(decision string) {
	m.Decided.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncCompleted() {
	m.Completed.Inc()
}

func (m *Metrics) IncExpired() {
	m.Expired.Inc()
}
