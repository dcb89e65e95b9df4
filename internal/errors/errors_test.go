package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderMetadata(t *testing.T) {
	t.Parallel()

	base := NewStd("mount failed")
	err := New(base).
		Component("storage").
		Category(CategoryMount).
		Context("attempt", 3).
		Build()

	assert.Equal(t, "mount failed", err.Error())
	assert.Equal(t, "storage", err.Component)
	assert.Equal(t, CategoryMount, err.Category)
	assert.Equal(t, 3, err.GetContext()["attempt"])
	assert.NotZero(t, err.Timestamp)
}

func TestBuilderDefaults(t *testing.T) {
	t.Parallel()

	err := Newf("bad input: %s", "name").Build()
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Nil(t, err.GetContext())
}

func TestUnwrapAndIs(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("degraded")
	wrapped := New(fmt.Errorf("write row: %w", sentinel)).
		Category(CategoryLedger).
		Build()

	require.ErrorIs(t, wrapped, sentinel)
	assert.True(t, HasCategory(wrapped, CategoryLedger))
	assert.False(t, HasCategory(wrapped, CategoryMount))

	// Category matching between two enhanced errors.
	other := New(NewStd("other")).Category(CategoryLedger).Build()
	assert.ErrorIs(t, wrapped, other)
}

func TestHasCategoryThroughWrap(t *testing.T) {
	t.Parallel()

	inner := New(NewStd("busy")).Category(CategoryContention).Build()
	outer := fmt.Errorf("query identities: %w", inner)
	assert.True(t, HasCategory(outer, CategoryContention))
}
