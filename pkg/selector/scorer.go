package selector

import (
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

// Scorer rates an upstream for the current selection. The highest positive
// score wins; a score of zero or less trips the upstream's breaker.
type Scorer[T any] interface {
	Score(u *upstream.Upstream[T], index int, all *upstream.Registry[T]) float64
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc[T any] func(u *upstream.Upstream[T], index int, all *upstream.Registry[T]) float64

func (f ScorerFunc[T]) Score(u *upstream.Upstream[T], index int, all *upstream.Registry[T]) float64 {
	return f(u, index, all)
}

const (
	roundRobinPreferred = 10
	roundRobinFallback  = 1
)

type roundRobinScorer[T any] struct{}

// RoundRobin favours the upstream right after the last winner. Every other
// upstream still scores positively so it can stand in when the preferred one
// is OPEN.
func RoundRobin[T any]() Scorer[T] {
	return roundRobinScorer[T]{}
}

func (roundRobinScorer[T]) Score(_ *upstream.Upstream[T], index int, all *upstream.Registry[T]) float64 {
	if (all.LastChosenIndex()+1)%all.Len() == index {
		return roundRobinPreferred
	}

	return roundRobinFallback
}
