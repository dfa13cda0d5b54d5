package scoring

import (
	"math"
	"time"

	"github.com/angeloszaimis/upstream-selector/pkg/selector"
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

type leastResponseScorer struct {
	lookup Lookup
}

// Score is the inverse of the EWMA response time scaled by the in-flight
// count. Backends without a recorded response score highest so they get
// measured first.
func (l *leastResponseScorer) Score(u *upstream.Upstream[string], _ int, _ *upstream.Registry[string]) float64 {
	b := l.lookup(u.Target())
	if b == nil {
		return 0
	}

	ewma := b.EWMATime()
	if ewma == 0 {
		return math.MaxFloat64
	}

	load := ewma * (time.Duration(b.ActiveConnections()) + 1)
	return float64(time.Second) / float64(load)
}

func NewLeastResponseScorer(lookup Lookup) selector.Scorer[string] {
	return &leastResponseScorer{lookup: lookup}
}
