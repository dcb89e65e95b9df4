package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AttendanceMetrics contains Prometheus metrics for the recognition cycle.
type AttendanceMetrics struct {
	cyclesTotal        *prometheus.CounterVec
	matchesTotal       *prometheus.CounterVec
	cycleSkipsTotal    *prometheus.CounterVec
	enrollmentsTotal   *prometheus.CounterVec
	pipelineDuration   prometheus.Histogram
}

// NewAttendanceMetrics creates and registers attendance metrics.
func NewAttendanceMetrics(registry *prometheus.Registry) (*AttendanceMetrics, error) {
	m := &AttendanceMetrics{
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_attendance_cycles_total",
			Help: "Total number of recognition cycles by outcome",
		}, []string{"outcome"}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_attendance_matches_total",
			Help: "Total number of recognized faces by logging result",
		}, []string{"result"}),
		cycleSkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_attendance_cycle_skips_total",
			Help: "Cycles skipped before sampling by gate",
		}, []string{"gate"}),
		enrollmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_enrollments_total",
			Help: "Enrollment sessions by final state",
		}, []string{"state"}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_attendance_pipeline_duration_seconds",
			Help:    "Duration of the sample-detect-embed-match pipeline",
			Buckets: prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.cyclesTotal, m.matchesTotal, m.cycleSkipsTotal,
		m.enrollmentsTotal, m.pipelineDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordCycle records a completed cycle outcome ("no_face", "matched",
// "unmatched", "error").
func (m *AttendanceMetrics) RecordCycle(outcome string) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordMatch records a recognized face ("logged", "cooldown", "duplicate").
func (m *AttendanceMetrics) RecordMatch(result string) {
	if m == nil {
		return
	}
	m.matchesTotal.WithLabelValues(result).Inc()
}

// RecordSkip records a cycle skipped by a gate ("mode_disabled",
// "enrollment_active", "memory_floor", "cooldown").
func (m *AttendanceMetrics) RecordSkip(gate string) {
	if m == nil {
		return
	}
	m.cycleSkipsTotal.WithLabelValues(gate).Inc()
}

// RecordEnrollment records a finished enrollment session ("completed",
// "cancelled").
func (m *AttendanceMetrics) RecordEnrollment(state string) {
	if m == nil {
		return
	}
	m.enrollmentsTotal.WithLabelValues(state).Inc()
}

// ObservePipeline records pipeline duration in seconds.
func (m *AttendanceMetrics) ObservePipeline(seconds float64) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(seconds)
}
