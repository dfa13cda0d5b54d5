package scoring

import (
	"fmt"

	"github.com/angeloszaimis/upstream-selector/internal/backend"
	"github.com/angeloszaimis/upstream-selector/pkg/selector"
)

const (
	RoundRobin    = "round-robin"
	LeastConn     = "least-conn"
	LeastResponse = "least-response"
	Random        = "random"

	ConsistentHash     = "consistent-hash"
	WeightedRoundRobin = "weighted-round-robin"
)

// Names lists every scorer New understands.
var Names = []string{RoundRobin, LeastConn, LeastResponse, Random, ConsistentHash, WeightedRoundRobin}

// Lookup resolves a target URL to its backend, or nil if it is unknown.
type Lookup func(target string) *backend.Backend

// New returns the scorer registered under name.
func New(name string, lookup Lookup) (selector.Scorer[string], error) {
	switch name {
	case RoundRobin:
		return selector.RoundRobin[string](), nil
	case LeastConn:
		return NewLeastConnScorer(lookup), nil
	case LeastResponse:
		return NewLeastResponseScorer(lookup), nil
	case Random:
		return NewRandomScorer(), nil
	case ConsistentHash:
		return NewConsistentHashScorer(defaultVirtualNodes), nil
	case WeightedRoundRobin:
		return NewWeightedRoundRobinScorer(lookup), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}
