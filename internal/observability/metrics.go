// Package observability provides metrics collection for the appliance.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facegate/facegate-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Storage    *metrics.StorageMetrics
	Attendance *metrics.AttendanceMetrics
	Supervisor *metrics.SupervisorMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	storageMetrics, err := metrics.NewStorageMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage metrics: %w", err)
	}

	attendanceMetrics, err := metrics.NewAttendanceMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create attendance metrics: %w", err)
	}

	supervisorMetrics, err := metrics.NewSupervisorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor metrics: %w", err)
	}

	registry.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		registry:   registry,
		Storage:    storageMetrics,
		Attendance: attendanceMetrics,
		Supervisor: supervisorMetrics,
	}, nil
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
