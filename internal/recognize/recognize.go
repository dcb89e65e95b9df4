// Package recognize defines the boundary to the camera and face pipeline and
// the template matcher that runs behind it. The capture, detection and
// embedding stages are opaque, blocking and allocation-heavy; callers own the
// buffers they are handed and must release them on every exit path.
package recognize

import (
	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/storage"
)

// ErrNoFrame is returned when the camera produced nothing. It is an expected
// transient condition, not a fault.
var ErrNoFrame = errors.NewStd("recognize: no frame available")

// Frame is one captured camera frame. Release returns the underlying buffer
// to the source; it must be called exactly once on every path that obtained
// the frame.
type Frame interface {
	Bytes() []byte
	Width() int
	Height() int
	Release()
}

// Box is one detected face region within a frame.
type Box struct {
	X, Y, W, H int
}

// Pipeline is the opaque capture/detect/embed boundary. Implementations wrap
// the camera driver and the neural model; every method may block and may
// fail, and Detect returning an empty slice is the normal "no face" result.
type Pipeline interface {
	// Capture acquires one frame. The caller must Release it.
	Capture() (Frame, error)
	// Detect finds face boxes in the frame.
	Detect(frame Frame) ([]Box, error)
	// Embed aligns the boxed face and produces its embedding vector of
	// storage.EmbeddingSize elements. The returned slice is owned by the
	// caller.
	Embed(frame Frame, box Box) ([]float32, error)
}

// Disconnected is a pipeline with no camera behind it. Capture always
// reports ErrNoFrame, so attendance cycles fall through as "no face" until a
// platform backend is attached. The control plane still works fully against
// this pipeline.
type Disconnected struct{}

func (Disconnected) Capture() (Frame, error)     { return nil, ErrNoFrame }
func (Disconnected) Detect(Frame) ([]Box, error) { return nil, nil }

func (Disconnected) Embed(Frame, Box) ([]float32, error) { return nil, ErrNoFrame }

// Match is the result of matching an embedding against the template store.
type Match struct {
	Name       string
	Confidence float64
}

// Matcher matches an embedding against enrolled templates.
type Matcher interface {
	// Match returns the best match and whether any template scored at or
	// above the threshold.
	Match(embedding []float32, threshold float64) (Match, bool)
	// SetTemplates replaces the in-memory template set after an enrollment
	// or deletion rewrote the store.
	SetTemplates(templates []storage.FaceTemplate)
}
