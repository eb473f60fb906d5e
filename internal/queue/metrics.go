package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts intake outcomes. A nil *Metrics records nothing.
type Metrics struct {
	received *prometheus.CounterVec
	depth    prometheus.Gauge
}

// NewMetrics creates the intake collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenant_backup",
			Subsystem: "intake",
			Name:      "messages_total",
			Help:      "Messages received by the intake, by outcome.",
		}, []string{"outcome"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tenant_backup",
			Subsystem: "intake",
			Name:      "queue_depth",
			Help:      "Accepted messages not yet picked up by the worker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.received, m.depth)
	}
	return m
}

func (m *Metrics) observe(outcome string, depth int) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(outcome).Inc()
	m.depth.Set(float64(depth))
}

func (m *Metrics) setDepth(depth int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(depth))
}
