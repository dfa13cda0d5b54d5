package scoring

import (
	"math"

	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
	"github.com/angeloszaimis/upstream-selector/pkg/selector"
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

// currentWeightStat holds an upstream's running weight in its Stats.
const currentWeightStat = "wrr_current_weight"

// weightedRoundRobinScorer implements smooth weighted round robin: each scan
// adds every eligible upstream's weight to its running weight and the highest
// running weight wins. The winner pays back the scan's total weight at the
// start of the next scan.
//
// Not safe for concurrent use; the engine's caller serialises scans.
type weightedRoundRobinScorer struct {
	lookup Lookup

	leader    *upstream.Upstream[string]
	leaderCur int
	total     int
	scale     float64
}

func (w *weightedRoundRobinScorer) Score(u *upstream.Upstream[string], index int, all *upstream.Registry[string]) float64 {
	if index == 0 {
		w.settle(all)
	}

	b := w.lookup(u.Target())
	if b == nil {
		return 0
	}

	// OPEN upstreams cannot win. A positive score keeps their breaker timestamp.
	if u.Status() == circuitbreaker.StateOpen {
		return fallbackScore
	}

	weight := b.Weight()
	current := currentWeight(u) + weight
	u.Stats()[currentWeightStat] = current
	w.total += weight

	if w.leader == nil || current > w.leaderCur {
		w.leader = u
		w.leaderCur = current
	}

	// Any positive map that is strictly increasing in the running weight
	// picks the same winner, as long as scale is fixed for the scan.
	return math.Exp(float64(current) / w.scale)
}

// settle charges the previous scan's winner and starts a new scan.
func (w *weightedRoundRobinScorer) settle(all *upstream.Registry[string]) {
	if w.leader != nil {
		w.leader.Stats()[currentWeightStat] = currentWeight(w.leader) - w.total
	}

	w.leader = nil
	w.leaderCur = 0
	w.total = 0

	registered := 0
	for _, u := range all.All() {
		if b := w.lookup(u.Target()); b != nil {
			registered += b.Weight()
		}
	}
	w.scale = float64(max(registered, 1))
}

func currentWeight(u *upstream.Upstream[string]) int {
	current, _ := u.Stats()[currentWeightStat].(int)
	return current
}

func NewWeightedRoundRobinScorer(lookup Lookup) selector.Scorer[string] {
	return &weightedRoundRobinScorer{lookup: lookup}
}
