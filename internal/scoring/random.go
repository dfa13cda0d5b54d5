package scoring

import (
	"math/rand/v2"

	"github.com/angeloszaimis/upstream-selector/pkg/selector"
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

type randomScorer struct{}

// Score is uniform in (0, 1] so a random draw never trips a breaker.
func (r *randomScorer) Score(*upstream.Upstream[string], int, *upstream.Registry[string]) float64 {
	return 1 - rand.Float64()
}

func NewRandomScorer() selector.Scorer[string] {
	return &randomScorer{}
}
