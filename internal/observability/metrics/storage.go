// Package metrics provides Prometheus metric collectors for the appliance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics contains Prometheus metrics for persistence gateway
// operations.
type StorageMetrics struct {
	mountAttemptsTotal    prometheus.Counter
	remountsTotal         *prometheus.CounterVec
	operationsTotal       *prometheus.CounterVec
	operationErrorsTotal  *prometheus.CounterVec
	contentionTimeouts    prometheus.Counter
	ledgerRowsWritten     prometheus.Counter
	identityCacheHits     prometheus.Counter
	identityCacheMisses   prometheus.Counter
	mountStateGauge       prometheus.Gauge
}

// NewStorageMetrics creates and registers storage metrics.
func NewStorageMetrics(registry *prometheus.Registry) (*StorageMetrics, error) {
	m := &StorageMetrics{
		mountAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facegate_storage_mount_attempts_total",
			Help: "Total number of storage mount attempts",
		}),
		remountsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_storage_remounts_total",
			Help: "Total number of runtime remount attempts by result",
		}, []string{"result"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_storage_operations_total",
			Help: "Total number of storage operations by kind",
		}, []string{"operation"}),
		operationErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_storage_operation_errors_total",
			Help: "Total number of failed storage operations by kind",
		}, []string{"operation"}),
		contentionTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facegate_storage_contention_timeouts_total",
			Help: "Total number of storage lock acquisitions that timed out",
		}),
		ledgerRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facegate_storage_ledger_rows_written_total",
			Help: "Total number of attendance rows appended or rewritten",
		}),
		identityCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facegate_storage_identity_cache_hits_total",
			Help: "Identity directory reads served from cache",
		}),
		identityCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facegate_storage_identity_cache_misses_total",
			Help: "Identity directory reads that went to the medium",
		}),
		mountStateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facegate_storage_mount_state",
			Help: "Current mount state (0=unmounted, 1=mounted, 2=degraded)",
		}),
	}

	collectors := []prometheus.Collector{
		m.mountAttemptsTotal, m.remountsTotal, m.operationsTotal,
		m.operationErrorsTotal, m.contentionTimeouts, m.ledgerRowsWritten,
		m.identityCacheHits, m.identityCacheMisses, m.mountStateGauge,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordMountAttempt increments the mount attempt counter.
func (m *StorageMetrics) RecordMountAttempt() {
	if m == nil {
		return
	}
	m.mountAttemptsTotal.Inc()
}

// RecordRemount records a runtime remount attempt outcome ("success" or
// "failure").
func (m *StorageMetrics) RecordRemount(result string) {
	if m == nil {
		return
	}
	m.remountsTotal.WithLabelValues(result).Inc()
}

// RecordOperation records a storage operation and optionally its failure.
func (m *StorageMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation).Inc()
	if err != nil {
		m.operationErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// RecordContentionTimeout increments the lock timeout counter.
func (m *StorageMetrics) RecordContentionTimeout() {
	if m == nil {
		return
	}
	m.contentionTimeouts.Inc()
}

// RecordLedgerRow increments the ledger row counter.
func (m *StorageMetrics) RecordLedgerRow() {
	if m == nil {
		return
	}
	m.ledgerRowsWritten.Inc()
}

// RecordIdentityCache records an identity cache lookup.
func (m *StorageMetrics) RecordIdentityCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.identityCacheHits.Inc()
	} else {
		m.identityCacheMisses.Inc()
	}
}

// SetMountState updates the mount state gauge.
func (m *StorageMetrics) SetMountState(state int) {
	if m == nil {
		return
	}
	m.mountStateGauge.Set(float64(state))
}
