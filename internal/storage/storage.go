// Package storage implements the persistence gateway: a mutex-guarded facade
// over the storage medium holding the identity directory, per-day attendance
// ledgers, the face template store and the device settings file.
//
// All medium access is serialized by a single time-bounded lock. Callers that
// cannot acquire the lock within the configured bound receive a soft failure
// (stale cache or an empty/default result) instead of blocking: the
// recognition cycle and the control plane must never be able to stall each
// other long enough for the watchdog to fire.
package storage

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability/metrics"
)

// MountState describes the medium lifecycle: Unmounted until the boot mount
// succeeds, Mounted during normal operation, Degraded after a failed runtime
// remount.
type MountState int32

const (
	StateUnmounted MountState = iota
	StateMounted
	StateDegraded
)

func (s MountState) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounted:
		return "mounted"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Sentinel errors returned by gateway operations.
var (
	ErrContention       = errors.NewStd("storage: lock acquisition timed out")
	ErrNotMounted       = errors.NewStd("storage: medium not mounted")
	ErrDegraded         = errors.NewStd("storage: medium degraded")
	ErrIdentityExists   = errors.NewStd("storage: identity name already exists")
	ErrIdentityNotFound = errors.NewStd("storage: identity not found")
	ErrTemplateCapacity = errors.NewStd("storage: template store is full")
)

const (
	dbDir        = "db"
	ledgerDir    = "atd"
	usersFile    = "users.txt"
	settingsFile = "settings.json"
	templateFile = "face.bin"

	identityCacheKey = "directory"
)

// Gateway is the mutex-guarded persistence facade. All operations acquire the
// gateway lock before touching the medium; internal helpers suffixed Locked
// assume the lock is already held, which is how compound operations reuse
// lower-level reads without re-acquiring.
type Gateway struct {
	cfg     conf.StorageConfig
	medium  Medium
	sem     chan struct{}
	state   atomic.Int32
	cache   *cache.Cache
	metrics *metrics.StorageMetrics
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.StorageMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithClock overrides the wall clock, used by tests and by the time-sync
// fallback.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a gateway over the given medium. The gateway starts Unmounted;
// call Open before use.
func New(cfg conf.StorageConfig, medium Medium, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		medium: medium,
		sem:    make(chan struct{}, 1),
		cache:  cache.New(cache.NoExpiration, cache.NoExpiration),
		log:    logging.ForService("storage"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current mount state.
func (g *Gateway) State() MountState {
	return MountState(g.state.Load())
}

func (g *Gateway) setState(s MountState) {
	g.state.Store(int32(s))
	g.metrics.SetMountState(int(s))
}

// Open mounts the medium with a bounded retry sequence and initializes the
// directory layout. The bus clock is lowered and the backoff doubled on each
// retry, with a bus reset in between. Exhausting the retry budget is a fatal
// condition for storage-dependent features; the returned error carries the
// hardware category so the caller can raise the fault signal and halt.
// Open holds the gateway lock for the whole sequence.
func (g *Gateway) Open() error {
	if !g.acquire("open") {
		return g.contentionErr("open")
	}
	defer g.release()

	backoff := g.cfg.MountBackoff
	var lastErr error

	for attempt := 0; attempt < g.cfg.MountAttempts; attempt++ {
		if attempt > 0 {
			if err := g.medium.Reset(); err != nil {
				g.log.Warn("bus reset failed", "attempt", attempt, "error", err)
			}
			time.Sleep(backoff)
			backoff *= 2
		}

		opts := MountOptions{BusClockKHz: g.busClockForAttempt(attempt)}
		g.metrics.RecordMountAttempt()
		if err := g.medium.Mount(opts); err != nil {
			lastErr = err
			g.log.Warn("mount attempt failed",
				"attempt", attempt+1,
				"attempts", g.cfg.MountAttempts,
				"bus_clock_khz", opts.BusClockKHz,
				"error", err)
			continue
		}

		g.setState(StateMounted)
		if err := g.initLayoutLocked(); err != nil {
			g.setState(StateUnmounted)
			return err
		}
		g.log.Info("storage mounted", "root", g.medium.Root(), "attempt", attempt+1)
		return nil
	}

	g.setState(StateUnmounted)
	return errors.New(lastErr).
		Component("storage").
		Category(errors.CategoryHardware).
		Context("attempts", g.cfg.MountAttempts).
		Build()
}

func (g *Gateway) busClockForAttempt(attempt int) int {
	ladder := g.cfg.BusClockKHz
	if len(ladder) == 0 {
		return 0
	}
	if attempt >= len(ladder) {
		return ladder[len(ladder)-1]
	}
	return ladder[attempt]
}

// initLayoutLocked recreates the fixed directory skeleton. Idempotent; also
// used by factory reset.
func (g *Gateway) initLayoutLocked() error {
	root := g.medium.Root()
	for _, dir := range []string{dbDir, ledgerDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return errors.New(err).
				Component("storage").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}
	usersPath := filepath.Join(root, dbDir, usersFile)
	if _, err := os.Stat(usersPath); os.IsNotExist(err) {
		if err := os.WriteFile(usersPath, []byte("[]"), 0o644); err != nil {
			return errors.New(err).
				Component("storage").
				Category(errors.CategoryFileIO).
				Context("file", usersFile).
				Build()
		}
	}
	return nil
}

// acquire takes the storage lock within the configured bound. A false return
// means the caller must soft-fail.
func (g *Gateway) acquire(op string) bool {
	select {
	case g.sem <- struct{}{}:
		return true
	case <-time.After(g.cfg.OpTimeout):
		g.metrics.RecordContentionTimeout()
		g.log.Warn("storage lock acquisition timed out", "operation", op, "timeout", g.cfg.OpTimeout)
		return false
	}
}

func (g *Gateway) release() {
	<-g.sem
}

func (g *Gateway) contentionErr(op string) error {
	return errors.New(ErrContention).
		Component("storage").
		Category(errors.CategoryContention).
		Context("operation", op).
		Build()
}

// withMedium runs fn against the mounted root, applying the runtime recovery
// policy: a medium-level failure triggers exactly one silent remount attempt.
// Remount success retries fn once and stays Mounted; remount failure drops to
// Degraded and reports the original error. In Degraded state one remount is
// attempted before the operation; success restores normal service. Lock must
// be held.
func (g *Gateway) withMedium(op string, fn func(root string) error) error {
	switch g.State() {
	case StateUnmounted:
		return errors.New(ErrNotMounted).
			Component("storage").
			Category(errors.CategoryHardware).
			Context("operation", op).
			Build()
	case StateDegraded:
		if !g.remountLocked() {
			return errors.New(ErrDegraded).
				Component("storage").
				Category(errors.CategoryMount).
				Context("operation", op).
				Build()
		}
	case StateMounted:
	}

	err := fn(g.medium.Root())
	if err == nil || !isMediumError(err) {
		return err
	}

	g.log.Warn("storage operation failed, attempting remount", "operation", op, "error", err)
	if g.remountLocked() {
		return fn(g.medium.Root())
	}

	g.setState(StateDegraded)
	return errors.New(err).
		Component("storage").
		Category(errors.CategoryMount).
		Context("operation", op).
		Build()
}

// remountLocked performs a single unmount/reset/mount sequence at the slowest
// configured bus clock.
func (g *Gateway) remountLocked() bool {
	_ = g.medium.Unmount()
	_ = g.medium.Reset()

	clock := 0
	if n := len(g.cfg.BusClockKHz); n > 0 {
		clock = g.cfg.BusClockKHz[n-1]
	}
	if err := g.medium.Mount(MountOptions{BusClockKHz: clock}); err != nil {
		g.metrics.RecordRemount("failure")
		g.log.Error("remount failed", "error", err)
		return false
	}
	g.metrics.RecordRemount("success")
	g.setState(StateMounted)
	return true
}

// isMediumError reports whether err originates from medium I/O rather than a
// domain condition. Only medium errors trigger the remount policy.
func isMediumError(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return true
	}
	return errors.HasCategory(err, errors.CategoryFileIO)
}

// errValidation builds a validation-category error for malformed request
// fields.
func errValidation(msg string) error {
	return errors.Newf("%s", msg).
		Component("storage").
		Category(errors.CategoryValidation).
		Build()
}

// writeFileAtomic writes data to path via a temporary file and rename so that
// a crash mid-write never leaves a truncated ledger or template store behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
