// Package supervisor hosts the background health tasks of the appliance: a
// software deadline watchdog over the recognition loop, a connectivity
// monitor with bounded reconnects, and opportunistic NTP time sync.
package supervisor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability/metrics"
)

// Watchdog trips when Feed is not called within the timeout. It replaces a
// hardware task watchdog: the recognition loop feeds it once per cycle, so a
// wedged pipeline surfaces as a trip instead of a silent hang.
type Watchdog struct {
	timeout  time.Duration
	lastFeed atomic.Int64 // unix nanos
	tripped  atomic.Bool
	onTrip   func()

	metrics *metrics.SupervisorMetrics
	log     *slog.Logger
	now     func() time.Time
}

// NewWatchdog creates a watchdog. onTrip runs at most once per starvation
// episode; the watchdog re-arms on the next feed.
func NewWatchdog(timeout time.Duration, onTrip func(), m *metrics.SupervisorMetrics) *Watchdog {
	w := &Watchdog{
		timeout: timeout,
		onTrip:  onTrip,
		metrics: m,
		log:     logging.ForService("supervisor"),
		now:     time.Now,
	}
	w.lastFeed.Store(w.now().UnixNano())
	return w
}

// Feed marks the monitored loop alive and re-arms a tripped watchdog.
func (w *Watchdog) Feed() {
	w.lastFeed.Store(w.now().UnixNano())
	if w.tripped.CompareAndSwap(true, false) {
		w.log.Info("watchdog re-armed after feed")
	}
	w.metrics.RecordWatchdogFeed()
}

// Starved reports whether the feed deadline has passed.
func (w *Watchdog) Starved() bool {
	last := time.Unix(0, w.lastFeed.Load())
	return w.now().Sub(last) > w.timeout
}

// check evaluates the deadline once. Exposed for tests through Starved and
// exercised by Run.
func (w *Watchdog) check() {
	if !w.Starved() {
		return
	}
	if !w.tripped.CompareAndSwap(false, true) {
		return
	}
	w.metrics.RecordWatchdogTrip()
	w.log.Error("watchdog tripped, monitored loop missed its deadline",
		"timeout", w.timeout,
		"last_feed", time.Unix(0, w.lastFeed.Load()))
	if w.onTrip != nil {
		w.onTrip()
	}
}

// Run evaluates the deadline until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	interval := w.timeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}
