package scoring

import (
	"hash/crc32"
	"slices"
	"sort"
	"strconv"

	"github.com/angeloszaimis/upstream-selector/pkg/selector"
	"github.com/angeloszaimis/upstream-selector/pkg/upstream"
)

const (
	defaultVirtualNodes = 100

	ownerScore    = 10
	fallbackScore = 1
)

// Keyed is implemented by scorers that route on a per-request key.
type Keyed interface {
	SetKey(key string)
}

type ringSnapshot struct {
	targets   []string
	positions []uint32
	owners    map[uint32]string
}

func buildRing(targets []string, vnodes int) *ringSnapshot {
	rs := &ringSnapshot{
		targets:   targets,
		positions: make([]uint32, 0, len(targets)*vnodes),
		owners:    make(map[uint32]string, len(targets)*vnodes),
	}

	for _, target := range targets {
		for i := 0; i < vnodes; i++ {
			hash := crc32.ChecksumIEEE([]byte(target + "#" + strconv.Itoa(i)))

			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = target
		}
	}

	sort.Slice(rs.positions, func(i, j int) bool { return rs.positions[i] < rs.positions[j] })
	return rs
}

func (r *ringSnapshot) lookup(hash uint32) string {
	if len(r.positions) == 0 {
		return ""
	}

	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})
	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]]
}

// consistentHashScorer favours the ring owner of the current key. Every
// upstream, OPEN ones included, keeps its place on the ring so keys only move
// when the registry changes.
//
// Not safe for concurrent use; the engine's caller serialises scans.
type consistentHashScorer struct {
	virtualNodes int
	hashKey      uint32
	ring         *ringSnapshot
	owner        string
}

// SetKey selects the key the next scan routes on.
func (s *consistentHashScorer) SetKey(key string) {
	s.hashKey = crc32.ChecksumIEEE([]byte(key))
}

func (s *consistentHashScorer) Score(u *upstream.Upstream[string], index int, all *upstream.Registry[string]) float64 {
	if index == 0 {
		s.resolveOwner(all)
	}

	if u.Target() == s.owner {
		return ownerScore
	}

	return fallbackScore
}

// resolveOwner runs once per scan, rebuilding the ring only when the
// registered targets changed.
func (s *consistentHashScorer) resolveOwner(all *upstream.Registry[string]) {
	targets := make([]string, 0, all.Len())
	for _, u := range all.All() {
		targets = append(targets, u.Target())
	}

	if s.ring == nil || !slices.Equal(s.ring.targets, targets) {
		s.ring = buildRing(targets, s.virtualNodes)
	}

	s.owner = s.ring.lookup(s.hashKey)
}

// NewConsistentHashScorer returns a keyed scorer placing each target on a
// hash ring with virtualNodes points. Non-positive values use 100.
func NewConsistentHashScorer(virtualNodes int) selector.Scorer[string] {
	if virtualNodes <= 0 {
		virtualNodes = defaultVirtualNodes
	}

	return &consistentHashScorer{virtualNodes: virtualNodes}
}
