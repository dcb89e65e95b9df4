package recognize

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/facegate/facegate-go/internal/storage"
)

// CosineMatcher matches embeddings against the enrolled templates by cosine
// similarity, taking the best score across all template sets so that a person
// enrolled from several angles matches on any of them.
//
// The template set is replaced wholesale by the request-handling context
// while the attendance context matches against it, hence the read/write lock.
type CosineMatcher struct {
	mu        sync.RWMutex
	templates []storage.FaceTemplate
}

// NewCosineMatcher creates a matcher over the given templates.
func NewCosineMatcher(templates []storage.FaceTemplate) *CosineMatcher {
	m := &CosineMatcher{}
	m.SetTemplates(templates)
	return m
}

// SetTemplates replaces the template set.
func (m *CosineMatcher) SetTemplates(templates []storage.FaceTemplate) {
	copied := make([]storage.FaceTemplate, len(templates))
	copy(copied, templates)

	m.mu.Lock()
	m.templates = copied
	m.mu.Unlock()
}

// Match implements Matcher.
func (m *CosineMatcher) Match(embedding []float32, threshold float64) (Match, bool) {
	if len(embedding) != storage.EmbeddingSize {
		return Match{}, false
	}

	probe := toFloat64(embedding)

	m.mu.RLock()
	defer m.mu.RUnlock()

	best := Match{}
	for i := range m.templates {
		score := CosineSimilarity(probe, toFloat64(m.templates[i].Embedding[:]))
		if score > best.Confidence {
			best = Match{Name: m.templates[i].Name, Confidence: score}
		}
	}
	return best, best.Name != "" && best.Confidence >= threshold
}

// CosineSimilarity computes the cosine of the angle between two equal-length
// vectors, clamped to 0 for degenerate inputs.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	normA := math.Sqrt(floats.Dot(a, a))
	normB := math.Sqrt(floats.Dot(b, b))
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
