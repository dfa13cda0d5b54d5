package upstream

import (
	"reflect"
	"slices"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
)

// NoneChosen is the LastChosenIndex of a registry that never selected anything.
const NoneChosen = -1

// EqualFunc reports whether two targets identify the same upstream.
type EqualFunc[T any] func(a, b T) bool

// Registry is the ordered set of upstreams a selector scans. Insertion order
// is significant: it is the scan order and the round robin cursor.
//
// Registry is not safe for concurrent use.
type Registry[T any] struct {
	upstreams  []*Upstream[T]
	lastChosen int
	equal      EqualFunc[T]
}

// NewRegistry creates an empty registry. A nil equal falls back to DeepEqual.
func NewRegistry[T any](equal EqualFunc[T]) *Registry[T] {
	if equal == nil {
		equal = DeepEqual[T]
	}

	return &Registry[T]{
		lastChosen: NoneChosen,
		equal:      equal,
	}
}

// DeepEqual compares targets structurally, unexported fields included. Types
// with an Equal method are compared with it.
func DeepEqual[T any](a, b T) bool {
	return cmp.Equal(a, b, cmp.Exporter(func(reflect.Type) bool { return true }))
}

// Add appends a CLOSED upstream for target. Duplicates are kept as separate
// entries.
func (r *Registry[T]) Add(target T, now time.Time) *Upstream[T] {
	u := newUpstream(target, now)
	r.upstreams = append(r.upstreams, u)
	return u
}

// Remove drops every upstream whose target equals target.
func (r *Registry[T]) Remove(target T) {
	r.RemoveBy(func(t T) bool {
		return r.equal(t, target)
	})
}

// RemoveBy drops every upstream whose target matches the predicate.
func (r *Registry[T]) RemoveBy(match func(T) bool) {
	r.upstreams = slices.DeleteFunc(r.upstreams, func(u *Upstream[T]) bool {
		return match(u.target)
	})
}

// ChooseAll calls visit for every upstream that is not CLOSED, in order.
func (r *Registry[T]) ChooseAll(visit func(u *Upstream[T], index int)) {
	for i, u := range r.upstreams {
		if u.Status() != circuitbreaker.StateClosed {
			visit(u, i)
		}
	}
}

func (r *Registry[T]) Len() int {
	return len(r.upstreams)
}

func (r *Registry[T]) At(index int) *Upstream[T] {
	return r.upstreams[index]
}

// All returns a copy of the upstream list. The upstreams themselves are shared.
func (r *Registry[T]) All() []*Upstream[T] {
	return slices.Clone(r.upstreams)
}

// LastChosenIndex returns the index of the most recent winner or NoneChosen.
// Removals do not adjust it.
func (r *Registry[T]) LastChosenIndex() int {
	return r.lastChosen
}

// MarkChosen records index as the winner of a selection made at now.
func (r *Registry[T]) MarkChosen(index int, now time.Time) {
	u := r.upstreams[index]
	u.lastChosen = now
	u.chosen = true
	r.lastChosen = index
}
