package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SupervisorMetrics contains Prometheus metrics for the supervision tasks.
type SupervisorMetrics struct {
	watchdogFeedsTotal  prometheus.Counter
	watchdogTripsTotal  prometheus.Counter
	linkReconnectsTotal *prometheus.CounterVec
	timeSyncsTotal      *prometheus.CounterVec
	linkUpGauge         prometheus.Gauge
}

// NewSupervisorMetrics creates and registers supervisor metrics.
func NewSupervisorMetrics(registry *prometheus.Registry) (*SupervisorMetrics, error) {
	m := &SupervisorMetrics{
		watchdogFeedsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facegate_watchdog_feeds_total",
			Help: "Total number of watchdog feeds",
		}),
		watchdogTripsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facegate_watchdog_trips_total",
			Help: "Total number of watchdog deadline trips",
		}),
		linkReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_link_reconnects_total",
			Help: "Link reconnect attempts by result",
		}, []string{"result"}),
		timeSyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_time_syncs_total",
			Help: "NTP synchronization attempts by result",
		}, []string{"result"}),
		linkUpGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facegate_link_up",
			Help: "Connectivity state (1=up, 0=down)",
		}),
	}

	collectors := []prometheus.Collector{
		m.watchdogFeedsTotal, m.watchdogTripsTotal, m.linkReconnectsTotal,
		m.timeSyncsTotal, m.linkUpGauge,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordWatchdogFeed increments the feed counter.
func (m *SupervisorMetrics) RecordWatchdogFeed() {
	if m == nil {
		return
	}
	m.watchdogFeedsTotal.Inc()
}

// RecordWatchdogTrip increments the trip counter.
func (m *SupervisorMetrics) RecordWatchdogTrip() {
	if m == nil {
		return
	}
	m.watchdogTripsTotal.Inc()
}

// RecordLinkReconnect records a reconnect attempt ("success" or "failure").
func (m *SupervisorMetrics) RecordLinkReconnect(result string) {
	if m == nil {
		return
	}
	m.linkReconnectsTotal.WithLabelValues(result).Inc()
}

// RecordTimeSync records an NTP sync attempt ("success" or "failure").
func (m *SupervisorMetrics) RecordTimeSync(result string) {
	if m == nil {
		return
	}
	m.timeSyncsTotal.WithLabelValues(result).Inc()
}

// SetLinkUp updates the connectivity gauge.
func (m *SupervisorMetrics) SetLinkUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.linkUpGauge.Set(1)
	} else {
		m.linkUpGauge.Set(0)
	}
}
