package circuitbreaker

import (
	"fmt"
	"time"
)

type State int

const (
	StateClosed   State = iota // Healthy, eligible for selection
	StateOpen                  // Failing, never selected
	StateHalfOpen              // Probing, eligible but not yet confirmed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state the same way String does so it reads well in JSON.
func (s State) MarshalText() ([]byte, error) {
	if s < StateClosed || s > StateHalfOpen {
		return nil, fmt.Errorf("circuitbreaker: invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

// Breaker holds the health state of a single upstream. It has no lock of its
// own: the selection engine that owns it serialises every call.
type Breaker struct {
	state State
	since time.Time
}

// NewBreaker returns a breaker in CLOSED state stamped at now.
func NewBreaker(now time.Time) *Breaker {
	return &Breaker{
		state: StateClosed,
		since: now,
	}
}

func (b *Breaker) State() State {
	return b.state
}

// Since returns the time of the last transition.
func (b *Breaker) Since() time.Time {
	return b.since
}

// Trip forces the breaker OPEN from any state and restarts the closing timeout.
func (b *Breaker) Trip(now time.Time) {
	b.transition(StateOpen, now)
}

// Probe moves an OPEN breaker to HALF-OPEN once more than timeout has elapsed
// since it opened. It reports whether the transition happened.
func (b *Breaker) Probe(now time.Time, timeout time.Duration) bool {
	if b.state != StateOpen || now.Sub(b.since) <= timeout {
		return false
	}

	b.transition(StateHalfOpen, now)
	return true
}

// Confirm closes a HALF-OPEN breaker after a successful probe. OPEN breakers
// must go through HALF-OPEN first, so Confirm is a no-op for them.
func (b *Breaker) Confirm(now time.Time) bool {
	if b.state != StateHalfOpen {
		return false
	}

	b.transition(StateClosed, now)
	return true
}

func (b *Breaker) transition(to State, now time.Time) {
	b.state = to
	b.since = now
}
