package supervisor

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability/metrics"
)

// LinkMonitor probes network reachability on an interval and runs a bounded
// reconnect sequence when the link drops. The appliance keeps working
// offline; the monitor only tracks and reports connectivity so time sync and
// remote scraping know what to expect.
type LinkMonitor struct {
	cfg     conf.SupervisorConfig
	up      atomic.Bool
	dial    func(target string, timeout time.Duration) error
	backoff func(attempt int) time.Duration

	metrics *metrics.SupervisorMetrics
	log     *slog.Logger
}

const dialTimeout = 3 * time.Second

// NewLinkMonitor creates a monitor for the configured probe target.
func NewLinkMonitor(cfg conf.SupervisorConfig, m *metrics.SupervisorMetrics) *LinkMonitor {
	return &LinkMonitor{
		cfg:  cfg,
		dial: dialProbe,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
		metrics: m,
		log:     logging.ForService("supervisor"),
	}
}

func dialProbe(target string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", target, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Up reports the last observed connectivity state.
func (l *LinkMonitor) Up() bool { return l.up.Load() }

// Check probes the target once, running the reconnect sequence on failure,
// and returns the resulting state.
func (l *LinkMonitor) Check(ctx context.Context) bool {
	if err := l.dial(l.cfg.LinkTarget, dialTimeout); err == nil {
		l.setUp(true)
		return true
	}

	// Bounded reconnect attempts with a short linear backoff. A dead
	// uplink must not turn the monitor into a tight dial loop.
	for attempt := 1; attempt <= l.cfg.LinkRetries; attempt++ {
		select {
		case <-ctx.Done():
			return l.up.Load()
		case <-time.After(l.backoff(attempt)):
		}
		if err := l.dial(l.cfg.LinkTarget, dialTimeout); err == nil {
			l.metrics.RecordLinkReconnect("success")
			l.setUp(true)
			return true
		}
		l.metrics.RecordLinkReconnect("failure")
	}
	l.setUp(false)
	return false
}

func (l *LinkMonitor) setUp(up bool) {
	prev := l.up.Swap(up)
	l.metrics.SetLinkUp(up)
	if prev != up {
		if up {
			l.log.Info("network link restored", "target", l.cfg.LinkTarget)
		} else {
			l.log.Warn("network link lost",
				"target", l.cfg.LinkTarget,
				"retries", l.cfg.LinkRetries)
		}
	}
}

// Run probes on the configured interval until ctx is cancelled.
func (l *LinkMonitor) Run(ctx context.Context) {
	l.Check(ctx)

	ticker := time.NewTicker(l.cfg.LinkCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Check(ctx)
		}
	}
}
