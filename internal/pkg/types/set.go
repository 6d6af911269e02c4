package types

import (
	"cmp"
	"iter"
	"maps"
	"slices"
)

// Set is a generic hash set. It is mutable: Add and Delete modify it in place.
type Set[T comparable] map[T]struct{}

// NewSet creates a Set holding data.
func NewSet[T comparable](data ...T) Set[T] {
	set := make(Set[T], len(data))
	for _, d := range data {
		set[d] = struct{}{}
	}
	return set
}

// Add inserts values and reports how many of them were not already present.
func (s Set[T]) Add(values ...T) int {
	added := 0
	for _, val := range values {
		if _, ok := s[val]; !ok {
			s[val] = struct{}{}
			added++
		}
	}
	return added
}

// Delete removes values from the set.
func (s Set[T]) Delete(values ...T) {
	for _, val := range values {
		delete(s, val)
	}
}

// Has reports whether v is in the set.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of elements.
func (s Set[T]) Len() int {
	return len(s)
}

// Clone returns an independent copy of the set.
func (s Set[T]) Clone() Set[T] {
	return maps.Clone(s)
}

// Union returns a new set with the elements of s and every other set.
func (s Set[T]) Union(others ...Set[T]) Set[T] {
	out := s.Clone()
	if out == nil {
		out = make(Set[T])
	}
	for _, o := range others {
		maps.Copy(out, o)
	}
	return out
}

// ToIter returns an iterator over the elements in unspecified order.
func (s Set[T]) ToIter() iter.Seq[T] {
	return maps.Keys(s)
}

// ToSlice returns the elements in unspecified order.
func (s Set[T]) ToSlice() []T {
	return slices.Collect(s.ToIter())
}

// Sorted returns the elements of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(s.ToIter())
}
