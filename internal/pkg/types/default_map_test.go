package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMap(t *testing.T) {
	t.Run("get materializes the default", func(t *testing.T) {
		m := NewDefaultMap[string, []int](func() []int { return []int{} })

		assert.Equal(t, []int{}, m.Get("A"))
		assert.Equal(t, 1, m.Len())
	})

	t.Run("set overrides", func(t *testing.T) {
		m := NewDefaultMap[string, int](func() int { return 5 })
		m.Set("A", 1)

		assert.Equal(t, 1, m.Get("A"))
		assert.Equal(t, 5, m.Get("B"))
	})

	t.Run("update accumulates", func(t *testing.T) {
		m := NewDefaultMap[[2]string, int](func() int { return 0 })
		edge := [2]string{"payer", "A"}

		m.Update(edge, func(v int) int { return v + 2 })
		got := m.Update(edge, func(v int) int { return v + 3 })

		assert.Equal(t, 5, got)
		assert.Equal(t, map[[2]string]int{edge: 5}, m.ToMap())
	})
}
