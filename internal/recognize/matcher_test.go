package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facegate/facegate-go/internal/storage"
)

func templateWithVector(name string, fill func(i int) float32) storage.FaceTemplate {
	var t storage.FaceTemplate
	t.Name = name
	for i := range t.Embedding {
		t.Embedding[i] = fill(i)
	}
	return t
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	a := []float64{1, 0, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a, []float64{2, 0, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, []float64{0, 1, 0}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float64{-1, 0, 0}), 1e-9)

	// Degenerate inputs.
	assert.Zero(t, CosineSimilarity(a, []float64{0, 0, 0}))
	assert.Zero(t, CosineSimilarity(a, []float64{1, 2}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestMatcherPicksBestTemplate(t *testing.T) {
	t.Parallel()

	alice := templateWithVector("Alice", func(i int) float32 { return float32(i%7) + 1 })
	bob := templateWithVector("Bob", func(i int) float32 { return float32((i+3)%11) + 1 })
	m := NewCosineMatcher([]storage.FaceTemplate{alice, bob})

	probe := make([]float32, storage.EmbeddingSize)
	copy(probe, alice.Embedding[:])

	match, ok := m.Match(probe, 0.80)
	require.True(t, ok)
	assert.Equal(t, "Alice", match.Name)
	assert.InDelta(t, 1.0, match.Confidence, 1e-6)
}

func TestMatcherThreshold(t *testing.T) {
	t.Parallel()

	alice := templateWithVector("Alice", func(i int) float32 {
		if i == 0 {
			return 1
		}
		return 0
	})
	m := NewCosineMatcher([]storage.FaceTemplate{alice})

	// Orthogonal probe scores zero and never matches.
	probe := make([]float32, storage.EmbeddingSize)
	probe[1] = 1
	_, ok := m.Match(probe, 0.80)
	assert.False(t, ok)

	// An exact probe matches at any sane threshold.
	probe = make([]float32, storage.EmbeddingSize)
	probe[0] = 1
	match, ok := m.Match(probe, 0.99)
	require.True(t, ok)
	assert.Equal(t, "Alice", match.Name)
}

func TestMatcherEmptyAndInvalid(t *testing.T) {
	t.Parallel()

	m := NewCosineMatcher(nil)
	probe := make([]float32, storage.EmbeddingSize)
	probe[0] = 1

	_, ok := m.Match(probe, 0.5)
	assert.False(t, ok)

	// Wrong embedding length is rejected outright.
	_, ok = m.Match([]float32{1, 2, 3}, 0.5)
	assert.False(t, ok)
}

func TestMatcherSetTemplatesSwapsSet(t *testing.T) {
	t.Parallel()

	alice := templateWithVector("Alice", func(i int) float32 { return float32(i) + 1 })
	m := NewCosineMatcher([]storage.FaceTemplate{alice})

	probe := make([]float32, storage.EmbeddingSize)
	copy(probe, alice.Embedding[:])
	_, ok := m.Match(probe, 0.9)
	require.True(t, ok)

	m.SetTemplates(nil)
	_, ok = m.Match(probe, 0.9)
	assert.False(t, ok)
}
