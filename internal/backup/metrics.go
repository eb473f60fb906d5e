package backup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tenant_backup"

// Metrics holds the Prometheus collectors for job and tool activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	commandDuration *prometheus.HistogramVec
	commandFailures *prometheus.CounterVec
	reconciledJobs  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_total",
			Help:      "Jobs finished, by type and final status.",
		}, []string{"type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of backup and restore jobs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"type"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of external tool invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
		}, []string{"command"}),
		commandFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_failures_total",
			Help:      "External tool invocations that failed to start, timed out or exited non-zero.",
		}, []string{"command"}),
		reconciledJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconciled_jobs_total",
			Help:      "Stuck processing jobs marked failed by the reconciler.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.jobsTotal, m.jobDuration, m.commandDuration, m.commandFailures, m.reconciledJobs)
	}
	return m
}

// ObserveJob records the outcome of a finished job
func (m *Metrics) ObserveJob(jobType JobType, status JobStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(string(jobType), string(status)).Inc()
	m.jobDuration.WithLabelValues(string(jobType)).Observe(duration.Seconds())
}

// ObserveCommand records one external tool invocation
func (m *Metrics) ObserveCommand(name string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(name).Observe(duration.Seconds())
	if failed {
		m.commandFailures.WithLabelValues(name).Inc()
	}
}

// AddReconciled counts jobs failed by the reconciler
func (m *Metrics) AddReconciled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciledJobs.Add(float64(n))
}
