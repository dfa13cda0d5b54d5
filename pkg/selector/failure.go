package selector

import (
	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

// FailureHandle reports that the request sent to a selected upstream failed.
type FailureHandle func()

// FailureStrategy builds the FailureHandle handed out with a winning upstream.
type FailureStrategy[T any] func(u *upstream.Upstream[T]) FailureHandle

// TripOnFailure returns the default strategy: the handle opens the upstream's
// breaker whatever state it is in.
func TripOnFailure[T any](clock clockwork.Clock) FailureStrategy[T] {
	return func(u *upstream.Upstream[T]) FailureHandle {
		return func() {
			u.Trip(clock.Now())
		}
	}
}
