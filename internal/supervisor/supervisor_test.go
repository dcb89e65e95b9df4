package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/errors"
)

func TestWatchdogTripsOnceAndRearms(t *testing.T) {
	at := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	trips := 0

	w := NewWatchdog(8*time.Second, func() { trips++ }, nil)
	w.now = func() time.Time { return at }
	w.Feed()

	at = at.Add(5 * time.Second)
	w.check()
	assert.Equal(t, 0, trips)
	assert.False(t, w.Starved())

	at = at.Add(4 * time.Second)
	w.check()
	assert.Equal(t, 1, trips)
	assert.True(t, w.Starved())

	// Repeated checks during the same starvation episode do not re-fire.
	at = at.Add(10 * time.Second)
	w.check()
	assert.Equal(t, 1, trips)

	// A feed re-arms; the next starvation trips again.
	w.Feed()
	assert.False(t, w.Starved())
	at = at.Add(9 * time.Second)
	w.check()
	assert.Equal(t, 2, trips)
}

func testSupervisorConfig() conf.SupervisorConfig {
	return conf.SupervisorConfig{
		WatchdogTimeout:   8 * time.Second,
		LinkCheckInterval: 30 * time.Second,
		LinkTarget:        "1.1.1.1:53",
		LinkRetries:       3,
		TimeSyncInterval:  time.Hour,
	}
}

func TestLinkMonitorRecoversWithinRetryBudget(t *testing.T) {
	monitor := NewLinkMonitor(testSupervisorConfig(), nil)
	monitor.backoff = func(int) time.Duration { return 0 }

	calls := 0
	monitor.dial = func(string, time.Duration) error {
		calls++
		if calls < 3 {
			return errors.NewStd("connection refused")
		}
		return nil
	}

	up := monitor.Check(context.Background())
	assert.True(t, up)
	assert.True(t, monitor.Up())
	assert.Equal(t, 3, calls)
}

func TestLinkMonitorGivesUpAfterRetries(t *testing.T) {
	monitor := NewLinkMonitor(testSupervisorConfig(), nil)
	monitor.backoff = func(int) time.Duration { return 0 }

	calls := 0
	monitor.dial = func(string, time.Duration) error {
		calls++
		return errors.NewStd("network unreachable")
	}

	up := monitor.Check(context.Background())
	assert.False(t, up)
	assert.False(t, monitor.Up())
	// One initial probe plus the retry budget.
	assert.Equal(t, 4, calls)
}

func TestLinkMonitorStopsOnContextCancel(t *testing.T) {
	monitor := NewLinkMonitor(testSupervisorConfig(), nil)
	monitor.dial = func(string, time.Duration) error {
		return errors.NewStd("down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	monitor.Check(ctx)
	assert.Less(t, time.Since(start), time.Second, "cancelled context must abort the backoff")
}

func TestTimeSyncAppliesOffset(t *testing.T) {
	sync := NewTimeSync("pool.ntp.org", 0, time.Hour, nil)
	sync.query = func(string) (time.Duration, error) {
		return 2 * time.Second, nil
	}

	require.NoError(t, sync.Sync())
	assert.True(t, sync.Synced())

	drift := time.Until(sync.Now())
	assert.InDelta(t, (2 * time.Second).Seconds(), drift.Seconds(), 0.5)
}

func TestTimeSyncFallbackBeforeFirstSync(t *testing.T) {
	sync := NewTimeSync("pool.ntp.org", 0, time.Hour, nil)

	assert.False(t, sync.Synced())
	drift := time.Until(sync.Now())
	assert.InDelta(t, 0, drift.Seconds(), 0.5, "unsynced clock must track the system clock")
}

func TestTimeSyncFailureKeepsLastOffset(t *testing.T) {
	sync := NewTimeSync("pool.ntp.org", 0, time.Hour, nil)
	sync.query = func(string) (time.Duration, error) {
		return 3 * time.Second, nil
	}
	require.NoError(t, sync.Sync())

	sync.query = func(string) (time.Duration, error) {
		return 0, errors.NewStd("timeout")
	}
	err := sync.Sync()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryTimeSync))
	assert.True(t, sync.Synced())

	drift := time.Until(sync.Now())
	assert.InDelta(t, (3 * time.Second).Seconds(), drift.Seconds(), 0.5)
}

func TestTimeSyncUTCOffset(t *testing.T) {
	sync := NewTimeSync("pool.ntp.org", 120, time.Hour, nil)
	sync.query = func(string) (time.Duration, error) { return 0, nil }
	require.NoError(t, sync.Sync())

	drift := time.Until(sync.Now())
	assert.InDelta(t, (2 * time.Hour).Seconds(), drift.Seconds(), 0.5)
}
