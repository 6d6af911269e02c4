package types

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSet(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := NewSet[string]()
		assert.NotNil(t, s)
		assert.Zero(t, s.Len())
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		s := NewSet("A", "B", "A")
		assert.Equal(t, 2, s.Len())
		assert.True(t, s.Has("A"))
		assert.True(t, s.Has("B"))
	})
}

func TestSet_Add(t *testing.T) {
	s := NewSet("A")

	assert.Equal(t, 2, s.Add("A", "B", "C"))
	assert.Equal(t, 0, s.Add("B"))
	assert.Equal(t, 3, s.Len())
}

func TestSet_Delete(t *testing.T) {
	s := NewSet("A", "B")
	s.Delete("A", "missing")

	assert.False(t, s.Has("A"))
	assert.True(t, s.Has("B"))
}

func TestSet_CloneAndUnion(t *testing.T) {
	a := NewSet("A")
	b := NewSet("B")

	c := a.Clone()
	c.Add("Z")
	assert.False(t, a.Has("Z"))

	u := a.Union(b, NewSet("C"))
	assert.Equal(t, []string{"A", "B", "C"}, Sorted(u))
	assert.Equal(t, 1, a.Len())

	var empty Set[string]
	assert.Equal(t, []string{"B"}, Sorted(empty.Union(b)))
}

func TestSet_Iteration(t *testing.T) {
	s := NewSet(3, 1, 2)

	assert.ElementsMatch(t, []int{1, 2, 3}, s.ToSlice())
	assert.ElementsMatch(t, []int{1, 2, 3}, slices.Collect(s.ToIter()))
	assert.Equal(t, []int{1, 2, 3}, Sorted(s))
}
