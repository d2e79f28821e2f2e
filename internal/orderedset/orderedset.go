// Package orderedset provides a set that remembers insertion order.
package orderedset

import (
	"iter"
	"slices"
)

// A Set is an insertion-ordered set.  The zero value is an empty set ready to use.  Not
// thread-safe.
type Set[T comparable] struct {
	items []T
	index map[T]int
}

// Add adds v to the end of the set if not already present, and reports whether it was added.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	if s.index == nil {
		s.index = map[T]int{}
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Remove removes v from the set, preserving the order of the remaining elements, and reports
// whether v was present.
func (s *Set[T]) Remove(v T) bool {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	delete(s.index, v)
	s.items = slices.Delete(s.items, i, i+1)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j]] = j
	}
	return true
}

// Contains reports whether v is in the set.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

func (s *Set[T]) Len() int {
	return len(s.items)
}

// Clear removes every element.
func (s *Set[T]) Clear() {
	s.items = nil
	clear(s.index)
}

// All yields the elements in insertion order.  The set must not be modified during iteration; use
// [Set.Slice] to iterate over a snapshot instead.
func (s *Set[T]) All() iter.Seq[T] {
	return slices.Values(s.items)
}

// Slice returns a copy of the elements in insertion order.
func (s *Set[T]) Slice() []T {
	return slices.Clone(s.items)
}
