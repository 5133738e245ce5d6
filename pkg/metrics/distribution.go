package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DistributionMetrics records assignment outcomes and latencies.
type DistributionMetrics struct {
	duration  *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
	conflicts prometheus.Counter
}

// NewDistributionMetrics registers the distribution metrics on the provided registerer.
func NewDistributionMetrics(reg prometheus.Registerer) *DistributionMetrics {
	if reg == nil {
		return &DistributionMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assignment_duration_seconds",
		Help:    "Duration of assignment coordinator runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_outcomes_total",
		Help: "Assignment coordinator outcomes by method.",
	}, []string{"method", "outcome"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_conflicts_total",
		Help: "Capacity reservations lost to concurrent assigns.",
	})
	reg.MustRegister(duration, outcomes, conflicts)
	return &DistributionMetrics{
		duration:  duration,
		outcomes:  outcomes,
		conflicts: conflicts,
	}
}

// ObserveDuration records the duration for the named coordinator operation.
func (m *DistributionMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncOutcome increments the outcome counter for the given method.
func (m *DistributionMetrics) IncOutcome(method, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

// IncConflict counts a reservation lost to a concurrent assign.
func (m *DistributionMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, " ", "_")
}
