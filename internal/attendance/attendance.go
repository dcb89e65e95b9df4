// Package attendance runs the recognition cycle: sample a frame, find a
// face, match it against the enrolled templates, and append the check-in to
// the day's ledger. The cycle also drives the capture side of an active
// enrollment session, since both share the single camera pipeline.
package attendance

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/enroll"
	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability/metrics"
	"github.com/facegate/facegate-go/internal/recognize"
	"github.com/facegate/facegate-go/internal/storage"
)

// Feedback receives the user-facing outcome of a cycle. The realtime build
// wires this to the indicator hardware; tests use a recorder.
type Feedback interface {
	Recognized(name string, status storage.Status)
	Denied()
}

// noopFeedback is used when feedback is disabled in the device settings.
type noopFeedback struct{}

func (noopFeedback) Recognized(string, storage.Status) {}
func (noopFeedback) Denied()                           {}

// Controller owns the periodic recognition loop.
type Controller struct {
	cfg      conf.RecognitionConfig
	pipeline recognize.Pipeline
	matcher  recognize.Matcher
	gateway  *storage.Gateway
	enroll   *enroll.Coordinator

	autoMode atomic.Bool
	settings atomic.Pointer[conf.DeviceSettings]
	tracker  *cooldownTracker
	feedback Feedback

	metrics *metrics.AttendanceMetrics
	log     *slog.Logger

	now          func() time.Time
	memAvailable func() (uint64, error)
	feedWatchdog func()
}

// Option configures optional controller collaborators.
type Option func(*Controller)

// WithClock overrides the wall clock for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithFeedback sets the feedback sink.
func WithFeedback(f Feedback) Option {
	return func(c *Controller) { c.feedback = f }
}

// WithMemoryProbe overrides the free-memory probe for tests.
func WithMemoryProbe(probe func() (uint64, error)) Option {
	return func(c *Controller) { c.memAvailable = probe }
}

// WithWatchdog registers the supervisor feed called once per completed cycle.
func WithWatchdog(feed func()) Option {
	return func(c *Controller) { c.feedWatchdog = feed }
}

// WithMetrics attaches cycle metrics.
func WithMetrics(m *metrics.AttendanceMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a controller. Settings and the auto-mode flag are seeded from
// the persisted device settings; both can be updated at runtime.
func New(cfg conf.RecognitionConfig, pipeline recognize.Pipeline, matcher recognize.Matcher,
	gateway *storage.Gateway, coordinator *enroll.Coordinator, settings conf.DeviceSettings, opts ...Option) *Controller {

	c := &Controller{
		cfg:          cfg,
		pipeline:     pipeline,
		matcher:      matcher,
		gateway:      gateway,
		enroll:       coordinator,
		feedback:     noopFeedback{},
		log:          logging.ForService("attendance"),
		now:          time.Now,
		memAvailable: availableMemory,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = newCooldownTracker(cfg.RecognitionCooldown, c.now)
	}
	c.UpdateSettings(settings)
	return c
}

// AutoMode reports whether the recognition loop is live.
func (c *Controller) AutoMode() bool { return c.autoMode.Load() }

// SetAutoMode flips the recognition loop on or off. The loop keeps running
// and simply skips cycles while the flag is off, so toggling is instant and
// race-free.
func (c *Controller) SetAutoMode(enabled bool) {
	prev := c.autoMode.Swap(enabled)
	if prev != enabled {
		c.log.Info("auto attendance mode changed", "enabled", enabled)
	}
}

// UpdateSettings publishes new device settings to the running loop.
func (c *Controller) UpdateSettings(settings conf.DeviceSettings) {
	c.settings.Store(&settings)
	c.autoMode.Store(settings.AutoMode)
}

// Settings returns the settings snapshot the loop currently uses.
func (c *Controller) Settings() conf.DeviceSettings {
	return *c.settings.Load()
}

// ReloadTemplates swaps the live matcher set, used after directory
// mutations that change the template store outside an enrollment session.
func (c *Controller) ReloadTemplates(templates []storage.FaceTemplate) {
	c.matcher.SetTemplates(templates)
}

// ForgetCooldown clears the repeat-recognition suppression for name, so a
// manually corrected person can badge again without waiting out the window.
func (c *Controller) ForgetCooldown(name string) {
	c.tracker.Forget(name)
}

// Run executes the recognition loop until ctx is cancelled. Every iteration
// is separated by the attempt cooldown regardless of outcome, which bounds
// camera and CPU pressure on the appliance.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info("recognition loop started",
		"attempt_cooldown", c.cfg.AttemptCooldown,
		"recognition_cooldown", c.cfg.RecognitionCooldown)

	ticker := time.NewTicker(c.cfg.AttemptCooldown)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("recognition loop stopped")
			return
		case <-ticker.C:
			c.Cycle()
			if c.feedWatchdog != nil {
				c.feedWatchdog()
			}
		}
	}
}

// Cycle performs one pass. An active enrollment session takes over the
// pipeline for its captures; otherwise the cycle runs the match path unless
// a gate (mode off, memory floor) skips it.
func (c *Controller) Cycle() {
	if c.enroll != nil && c.enroll.Active() {
		c.enrollCycle()
		return
	}
	if !c.autoMode.Load() {
		c.metrics.RecordSkip("mode_disabled")
		return
	}
	if free, err := c.memAvailable(); err == nil && free < c.cfg.MemoryFloorMB*1024*1024 {
		c.metrics.RecordSkip("memory_floor")
		c.log.Warn("skipping cycle, free memory below floor",
			"free_mb", free/1024/1024, "floor_mb", c.cfg.MemoryFloorMB)
		return
	}
	c.matchCycle()
}

func (c *Controller) matchCycle() {
	started := c.now()
	embedding, ok := c.sampleEmbedding()
	if !ok {
		c.metrics.RecordCycle("no_face")
		return
	}

	settings := c.Settings()
	match, found := c.matcher.Match(embedding, settings.Confidence)
	c.metrics.ObservePipeline(c.now().Sub(started).Seconds())
	if !found {
		c.metrics.RecordCycle("unmatched")
		if settings.Feedback {
			c.feedback.Denied()
		}
		return
	}
	c.metrics.RecordCycle("matched")

	if !c.tracker.Allow(match.Name) {
		c.metrics.RecordMatch("cooldown")
		return
	}
	c.logRecognition(match, settings)
}

func (c *Controller) logRecognition(match recognize.Match, settings conf.DeviceSettings) {
	identity, ok, err := c.gateway.FindIdentityByName(match.Name)
	if !ok {
		// Template without a directory entry, usually a half-finished delete.
		c.log.Error("matched name missing from directory", "name", match.Name, "error", err)
		return
	}
	if err != nil {
		// Lookup served from the cache under contention; the match still counts.
		c.log.Warn("identity lookup degraded", "name", match.Name, "error", err)
	}

	now := c.now()
	record := storage.AttendanceRecord{
		UID:        identity.ID,
		Name:       identity.Name,
		Department: identity.Department,
		Date:       now.Format("2006-01-02"),
		Time:       now.Format("15:04:05"),
		Status:     DeriveStatus(now, settings),
		Confidence: match.Confidence,
	}

	logged, err := c.gateway.LogAttendance(record)
	if err != nil {
		if errors.Is(err, storage.ErrContention) {
			c.log.Warn("ledger busy, attendance row dropped", "name", identity.Name)
		} else {
			c.log.Error("failed to log attendance", "name", identity.Name, "error", err)
		}
		return
	}
	if logged {
		c.metrics.RecordMatch("logged")
		c.log.Info("attendance logged",
			"name", identity.Name,
			"status", record.Status,
			"confidence", match.Confidence)
	} else {
		c.metrics.RecordMatch("duplicate")
	}
	if settings.Feedback {
		c.feedback.Recognized(identity.Name, record.Status)
	}
}

// enrollCycle feeds one capture to the active enrollment session.
func (c *Controller) enrollCycle() {
	embedding, ok := c.sampleEmbedding()
	if !ok {
		return
	}
	if _, err := c.enroll.Confirm(embedding); err != nil {
		if !errors.Is(err, enroll.ErrNoSession) {
			c.log.Error("enrollment capture failed", "error", err)
		}
	}
}

// sampleEmbedding captures a frame, detects the dominant face and computes
// its embedding. The frame is released on every path out.
func (c *Controller) sampleEmbedding() ([]float32, bool) {
	frame, err := c.pipeline.Capture()
	if err != nil {
		if !errors.Is(err, recognize.ErrNoFrame) {
			c.log.Warn("frame capture failed", "error", err)
		}
		return nil, false
	}
	defer frame.Release()

	boxes, err := c.pipeline.Detect(frame)
	if err != nil {
		c.log.Warn("face detection failed", "error", err)
		return nil, false
	}
	if len(boxes) == 0 {
		return nil, false
	}

	embedding, err := c.pipeline.Embed(frame, boxes[0])
	if err != nil {
		c.log.Warn("embedding failed", "error", err)
		return nil, false
	}
	return embedding, true
}

func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
