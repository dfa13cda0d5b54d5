package scoring

import (
	"github.com/angeloszaimis/upstream-selector/pkg/selector"
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

type leastConnScorer struct {
	lookup Lookup
}

func (l *leastConnScorer) Score(u *upstream.Upstream[string], _ int, _ *upstream.Registry[string]) float64 {
	b := l.lookup(u.Target())
	if b == nil {
		return 0
	}

	return 1 / float64(1+b.ActiveConnections())
}

func NewLeastConnScorer(lookup Lookup) selector.Scorer[string] {
	return &leastConnScorer{lookup: lookup}
}
