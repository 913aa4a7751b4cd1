// Package metrics exposes Prometheus collectors for scheduling activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskweave/taskweave/internal/allocator"
	"github.com/taskweave/taskweave/pkg/models"
)

// Metrics holds every collector the coordinator reports into.
type Metrics struct {
	TasksScheduled    *prometheus.CounterVec
	TasksCompleted    *prometheus.CounterVec
	ConflictsDetected *prometheus.CounterVec
	ConflictsResolved *prometheus.CounterVec
	QuotaExhausted    *prometheus.CounterVec
	PoolUtilization   *prometheus.GaugeVec
	ExecutionSeconds  prometheus.Histogram
}

// New creates the collectors and registers them with the given registerer.
// A nil registerer uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		TasksScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskweave",
			Name:      "tasks_scheduled_total",
			Help:      "Tasks admitted for execution, by provider.",
		}, []string{"provider"}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskweave",
			Name:      "tasks_completed_total",
			Help:      "Tasks that reached a terminal state, by status.",
		}, []string{"status"}),
		ConflictsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskweave",
			Name:      "conflicts_detected_total",
			Help:      "Resource conflicts detected, by type.",
		}, []string{"type"}),
		ConflictsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskweave",
			Name:      "conflicts_resolved_total",
			Help:      "Resource conflicts driven to a terminal state, by outcome status.",
		}, []string{"status"}),
		QuotaExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskweave",
			Name:      "quota_exhausted_total",
			Help:      "Quota admission refusals, by provider.",
		}, []string{"provider"}),
		PoolUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskweave",
			Name:      "pool_utilization_ratio",
			Help:      "Resource pool utilization in [0,1], by kind.",
		}, []string{"kind"}),
		ExecutionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskweave",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock task execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}

	reg.MustRegister(
		m.TasksScheduled,
		m.TasksCompleted,
		m.ConflictsDetected,
		m.ConflictsResolved,
		m.QuotaExhausted,
		m.PoolUtilization,
		m.ExecutionSeconds,
	)
	return m
}

// ObserveUtilization refreshes the pool gauges from an allocator snapshot.
func (m *Metrics) ObserveUtilization(u map[models.ResourceKind]allocator.Utilization) {
	if m == nil {
		return
	}
	for kind, v := range u {
		m.PoolUtilization.WithLabelValues(string(kind)).Set(v.Ratio)
	}
}
