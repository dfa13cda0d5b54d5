package upstream

import (
	"time"

	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
)

// Stats is free-form data attached to an upstream. Scorers and callers read
// and write it; the selector passes it through untouched.
type Stats map[string]any

// Upstream represents one registered backend candidate together with its
// breaker and selection bookkeeping.
type Upstream[T any] struct {
	target     T
	breaker    *circuitbreaker.Breaker
	lastChosen time.Time
	chosen     bool
	stats      Stats
}

func newUpstream[T any](target T, now time.Time) *Upstream[T] {
	return &Upstream[T]{
		target:  target,
		breaker: circuitbreaker.NewBreaker(now),
		stats:   make(Stats),
	}
}

// Target returns the caller-defined identity of the upstream.
func (u *Upstream[T]) Target() T {
	return u.target
}

// Status returns the current breaker state.
func (u *Upstream[T]) Status() circuitbreaker.State {
	return u.breaker.State()
}

// StatusTimestamp returns the time of the last breaker transition.
func (u *Upstream[T]) StatusTimestamp() time.Time {
	return u.breaker.Since()
}

// LastChosen returns when the upstream was last selected. The second value is
// false if it has never been selected.
func (u *Upstream[T]) LastChosen() (time.Time, bool) {
	return u.lastChosen, u.chosen
}

func (u *Upstream[T]) Stats() Stats {
	return u.stats
}

// Trip opens the breaker regardless of its current state.
func (u *Upstream[T]) Trip(now time.Time) {
	u.breaker.Trip(now)
}

// Probe moves an expired OPEN breaker to HALF-OPEN.
func (u *Upstream[T]) Probe(now time.Time, timeout time.Duration) bool {
	return u.breaker.Probe(now, timeout)
}

// Confirm closes a HALF-OPEN breaker.
func (u *Upstream[T]) Confirm(now time.Time) bool {
	return u.breaker.Confirm(now)
}
