package syncstate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState(t *testing.T) {
	t.Run("unknown cursor is zero", func(t *testing.T) {
		s := New()
		assert.Equal(t, Cursor{}, s.Cursor("A"))
	})

	t.Run("reset rewinds to start of history", func(t *testing.T) {
		s := New()
		s.SetCursor("A", Cursor{LastSignature: "sig", LastBalance: decimal.NewFromInt(3), HasBalance: true})
		s.ResetCursor("A")

		assert.Empty(t, s.Cursor("A").LastSignature)
		assert.False(t, s.Cursor("A").HasBalance)
	})

	t.Run("greylist additions report novelty", func(t *testing.T) {
		s := New()
		assert.True(t, s.AddGreylist("B"))
		assert.False(t, s.AddGreylist("B"))
	})

	t.Run("clone is independent", func(t *testing.T) {
		s := New()
		s.AddGreylist("B")
		c := s.Clone()
		c.AddGreylist("C")
		c.SetCursor("C", Cursor{LastSignature: "x"})

		assert.False(t, s.Greylist.Has("C"))
		assert.NotContains(t, s.Cursors, "C")
	})

	t.Run("normalize fills nil collections", func(t *testing.T) {
		s := State{}.Normalize()
		assert.NotNil(t, s.Cursors)
		assert.NotNil(t, s.Greylist)
	})
}

func TestMemoryStore(t *testing.T) {
	initial := New()
	initial.AddGreylist("B")
	store := NewMemoryStore(initial)

	loaded, err := store.Load(t.Context())
	require.NoError(t, err)
	loaded.AddGreylist("C")

	again, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.False(t, again.Greylist.Has("C"), "loaded state must not alias the stored one")

	require.NoError(t, store.Save(t.Context(), loaded))
	again, err = store.Load(t.Context())
	require.NoError(t, err)
	assert.True(t, again.Greylist.Has("C"))
	assert.Equal(t, 1, store.Saves())
}
