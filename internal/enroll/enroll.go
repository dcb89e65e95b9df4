// Package enroll coordinates the multi-shot enrollment protocol between the
// control plane and the recognition path. There is at most one session
// system-wide; a start request while a session is active is rejected, never
// queued.
package enroll

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability/metrics"
	"github.com/facegate/facegate-go/internal/recognize"
	"github.com/facegate/facegate-go/internal/storage"
)

// Sentinel errors returned by the coordinator.
var (
	ErrBusy      = errors.NewStd("enroll: a session is already active")
	ErrNoSession = errors.NewStd("enroll: no active session")
	ErrStoreFull = errors.NewStd("enroll: template store is full")
)

// Session is one in-flight enrollment. The struct is fully populated before
// it is published through the coordinator's atomic pointer, so a concurrently
// running recognition cycle can never observe a half-written identity.
type Session struct {
	Identity  storage.Identity
	remaining atomic.Int32

	mu      sync.Mutex
	samples [][]float32
}

// Remaining returns the number of confirmations still required.
func (s *Session) Remaining() int {
	return int(s.remaining.Load())
}

// Status is a point-in-time snapshot of the coordinator state for the
// control plane.
type Status struct {
	Active    bool             `json:"active"`
	Identity  storage.Identity `json:"identity"`
	Remaining int              `json:"remaining"`
}

// Coordinator is the single-slot enrollment state machine. The Idle→Active
// transition is a compare-and-swap on the session pointer, so the busy check
// and the activation are one atomic step.
type Coordinator struct {
	active  atomic.Pointer[Session]
	gateway *storage.Gateway
	matcher recognize.Matcher

	confirmTimes int
	maxTemplates int

	metrics *metrics.AttendanceMetrics
	log     *slog.Logger
}

// New creates a coordinator. confirmTimes is the number of captures required
// to complete a session; maxTemplates caps distinct enrolled names.
func New(gateway *storage.Gateway, matcher recognize.Matcher, confirmTimes, maxTemplates int, m *metrics.AttendanceMetrics) *Coordinator {
	return &Coordinator{
		gateway:      gateway,
		matcher:      matcher,
		confirmTimes: confirmTimes,
		maxTemplates: maxTemplates,
		metrics:      m,
		log:          logging.ForService("enroll"),
	}
}

// Active reports whether a session is in flight. The attendance cycle reads
// this to gate itself off the shared detection pipeline.
func (c *Coordinator) Active() bool {
	return c.active.Load() != nil
}

// Status returns the current session snapshot.
func (c *Coordinator) Status() Status {
	session := c.active.Load()
	if session == nil {
		return Status{}
	}
	return Status{
		Active:    true,
		Identity:  session.Identity,
		Remaining: session.Remaining(),
	}
}

// Start begins a session for the given identity. It claims the single session
// slot first, then enforces the template cap and registers the identity in the
// directory. A concurrent session yields ErrBusy and leaves the in-flight
// session untouched; a rejected start writes nothing to the medium.
func (c *Coordinator) Start(identity storage.Identity) error {
	if identity.ID == "" || identity.Name == "" {
		return errors.Newf("enroll: identity id and name are required").
			Component("enroll").
			Category(errors.CategoryValidation).
			Build()
	}

	session := &Session{Identity: identity}
	session.remaining.Store(int32(c.confirmTimes))

	if !c.active.CompareAndSwap(nil, session) {
		return errors.New(ErrBusy).
			Component("enroll").
			Category(errors.CategoryConflict).
			Build()
	}

	// The slot is claimed; any failure below must release it so the session
	// starts atomically or not at all.
	if owners, err := c.gateway.CountTemplateOwners(); err == nil && owners >= c.maxTemplates {
		c.active.CompareAndSwap(session, nil)
		return errors.New(ErrStoreFull).
			Component("enroll").
			Category(errors.CategoryEnrollment).
			Context("max_templates", c.maxTemplates).
			Build()
	}

	// Register the identity so the ledger has a uid to log against. An
	// existing registration is fine: re-enrollment replaces the template.
	if err := c.gateway.CreateIdentity(identity); err != nil && !errors.Is(err, storage.ErrIdentityExists) {
		c.active.CompareAndSwap(session, nil)
		return err
	}

	c.log.Info("enrollment started",
		"id", identity.ID,
		"name", identity.Name,
		"confirmations", c.confirmTimes)
	return nil
}

// Confirm records one successful capture for the active session. When the
// remaining count reaches zero the accumulated samples are averaged into one
// template, the store is rewritten, and the coordinator returns to Idle. The
// returned count is the number of confirmations still required.
func (c *Coordinator) Confirm(embedding []float32) (int, error) {
	session := c.active.Load()
	if session == nil {
		return 0, ErrNoSession
	}
	if len(embedding) != storage.EmbeddingSize {
		return session.Remaining(), errors.Newf("enroll: embedding must have %d elements, got %d", storage.EmbeddingSize, len(embedding)).
			Component("enroll").
			Category(errors.CategoryValidation).
			Build()
	}

	session.mu.Lock()
	sample := make([]float32, len(embedding))
	copy(sample, embedding)
	session.samples = append(session.samples, sample)
	session.mu.Unlock()

	remaining := session.remaining.Add(-1)
	if remaining > 0 {
		c.log.Debug("enrollment capture confirmed", "name", session.Identity.Name, "remaining", remaining)
		return int(remaining), nil
	}

	// Retire the session before persisting; if a concurrent cancel won the
	// race, the capture is discarded.
	if !c.active.CompareAndSwap(session, nil) {
		return 0, ErrNoSession
	}
	err := c.finalize(session)
	return 0, err
}

// Cancel forces the coordinator back to Idle, discarding any partial capture.
// Cancelling with no active session is a no-op; the stream failure path calls
// this unconditionally.
func (c *Coordinator) Cancel(reason string) {
	session := c.active.Swap(nil)
	if session == nil {
		return
	}
	c.metrics.RecordEnrollment("cancelled")
	c.log.Info("enrollment cancelled",
		"name", session.Identity.Name,
		"remaining", session.Remaining(),
		"reason", reason)
}

func (c *Coordinator) finalize(session *Session) error {
	session.mu.Lock()
	samples := session.samples
	session.samples = nil
	session.mu.Unlock()

	template := storage.FaceTemplate{Name: session.Identity.Name}
	template.Embedding = averageSamples(samples)

	templates, _, err := c.gateway.LoadTemplates()
	if err != nil {
		c.metrics.RecordEnrollment("failed")
		return err
	}
	// Re-enrollment replaces any previous template set for the name.
	kept := templates[:0]
	for _, t := range templates {
		if t.Name != session.Identity.Name {
			kept = append(kept, t)
		}
	}
	kept = append(kept, template)

	if err := c.gateway.SaveTemplates(kept, c.confirmTimes); err != nil {
		c.metrics.RecordEnrollment("failed")
		return err
	}
	if err := c.gateway.MarkEnrolled(session.Identity.Name, true); err != nil {
		c.log.Warn("failed to flag identity as enrolled", "name", session.Identity.Name, "error", err)
	}
	if c.matcher != nil {
		c.matcher.SetTemplates(kept)
	}

	c.metrics.RecordEnrollment("completed")
	c.log.Info("enrollment completed", "name", session.Identity.Name, "samples", len(samples))
	return nil
}

// averageSamples folds the capture samples into a single embedding. With one
// sample this is the identity; with several it smooths capture noise across
// angles.
func averageSamples(samples [][]float32) [storage.EmbeddingSize]float32 {
	var out [storage.EmbeddingSize]float32
	if len(samples) == 0 {
		return out
	}
	for _, sample := range samples {
		for i := 0; i < storage.EmbeddingSize && i < len(sample); i++ {
			out[i] += sample[i]
		}
	}
	n := float32(len(samples))
	for i := range out {
		out[i] /= n
	}
	return out
}
