package supervisor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"

	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability/metrics"
)

// TimeSync keeps appliance time honest without depending on the uplink. It
// opportunistically queries NTP and holds the measured clock offset; until
// the first successful sync the system clock is used as-is, which is
// monotonic from boot and good enough for ledger ordering.
type TimeSync struct {
	server    string
	utcOffset time.Duration
	interval  time.Duration

	offsetNanos atomic.Int64
	synced      atomic.Bool
	query       func(server string) (time.Duration, error)

	metrics *metrics.SupervisorMetrics
	log     *slog.Logger
}

// NewTimeSync creates a syncer against the given NTP server. utcOffsetMinutes
// shifts the reported local time; the ledger stores local timestamps.
func NewTimeSync(server string, utcOffsetMinutes int, interval time.Duration, m *metrics.SupervisorMetrics) *TimeSync {
	return &TimeSync{
		server:    server,
		utcOffset: time.Duration(utcOffsetMinutes) * time.Minute,
		interval:  interval,
		query:     queryOffset,
		metrics:   m,
		log:       logging.ForService("supervisor"),
	}
}

func queryOffset(server string) (time.Duration, error) {
	response, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err := response.Validate(); err != nil {
		return 0, err
	}
	return response.ClockOffset, nil
}

// SetUTCOffset updates the local time shift, applied on the next Now call.
func (t *TimeSync) SetUTCOffset(minutes int) {
	t.utcOffset = time.Duration(minutes) * time.Minute
}

// Synced reports whether at least one NTP round succeeded since boot.
func (t *TimeSync) Synced() bool { return t.synced.Load() }

// Now returns the best current local-time estimate: system clock plus the
// last measured NTP offset plus the configured UTC shift.
func (t *TimeSync) Now() time.Time {
	return time.Now().
		Add(time.Duration(t.offsetNanos.Load())).
		Add(t.utcOffset)
}

// Sync performs one NTP round.
func (t *TimeSync) Sync() error {
	offset, err := t.query(t.server)
	if err != nil {
		t.metrics.RecordTimeSync("failure")
		return errors.New(err).
			Component("supervisor").
			Category(errors.CategoryTimeSync).
			Context("server", t.server).
			Build()
	}
	t.offsetNanos.Store(int64(offset))
	t.synced.Store(true)
	t.metrics.RecordTimeSync("success")
	t.log.Info("time synchronized", "server", t.server, "offset", offset)
	return nil
}

// Run syncs immediately and then on the configured interval. Failures are
// logged and retried on the next tick; the fallback clock keeps the ledger
// usable in the meantime.
func (t *TimeSync) Run(ctx context.Context) {
	if err := t.Sync(); err != nil {
		t.log.Warn("initial time sync failed, using system clock", "error", err)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Sync(); err != nil {
				t.log.Warn("time sync failed", "error", err)
			}
		}
	}
}
