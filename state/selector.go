package state

import "sync"

// Selector memoizes a pure computation over a slice's state, keyed by the
// slice version: the computation reruns only when the version moved.
// Selectors never mutate their input and are safe against a zero-value
// slice (version 0, empty data).
type Selector[In, Out any] struct {
	compute func(In) Out

	mu      sync.Mutex
	version uint64
	cached  bool
	value   Out
}

// NewSelector wraps a pure computation for version-based memoization.
func NewSelector[In, Out any](compute func(In) Out) *Selector[In, Out] {
	return &Selector[In, Out]{compute: compute}
}

// At returns the computed value for the given slice version, reusing the
// memoized result when the version is unchanged.
func (s *Selector[In, Out]) At(version uint64, in In) Out {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached && version == s.version {
		return s.value
	}
	s.value = s.compute(in)
	s.version = version
	s.cached = true
	return s.value
}

// Invalidate drops the memoized value (slice reset).
func (s *Selector[In, Out]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = false
}

// Breakdown builds a key -> count map in a single pass. The shared shape
// behind the per-family breakdown selectors (status counts, category counts).
func Breakdown[T any](items []T, key func(T) string) map[string]int {
	out := make(map[string]int, 8)
	for _, it := range items {
		out[key(it)]++
	}
	return out
}

// Filter returns the items matching keep, preserving order.
func Filter[T any](items []T, keep func(T) bool) []T {
	var out []T
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
