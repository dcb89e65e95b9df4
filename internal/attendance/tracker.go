package attendance

import (
	"sync"
	"time"
)

// cooldownTracker suppresses repeat recognitions of the same person within a
// fixed window. Someone standing in front of the camera produces a match on
// nearly every cycle; only the first one per window reaches the ledger and
// the feedback signals.
type cooldownTracker struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newCooldownTracker(window time.Duration, now func() time.Time) *cooldownTracker {
	return &cooldownTracker{
		window: window,
		last:   make(map[string]time.Time),
		now:    now,
	}
}

// Allow reports whether a recognition of name may proceed, and records it
// when allowed.
func (t *cooldownTracker) Allow(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[name]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[name] = now
	return true
}

// Forget clears the suppression entry for name. Used after a manual override
// so a corrected person can badge again immediately.
func (t *cooldownTracker) Forget(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, name)
}
