package detect

import (
	"strings"

	"github.com/opensource-finance/harrier/internal/graph"
)

const (
	// minChainAccounts is the smallest reportable chain: three hops.
	minChainAccounts = 4

	// maxChainAccounts caps the path search depth.
	maxChainAccounts = 7

	// lowActivityMax is the highest total transaction count (sender plus
	// receiver, whole dataset) an intermediate account may have.
	lowActivityMax = 3
)

// ShellChains finds layering chains: paths of at least minChainAccounts
// distinct accounts where every interior account is low-activity. The first
// and last accounts are the laundering endpoints and carry no activity
// bound.
//
// The search extends a path only while the most recently added intermediate
// is low-activity; a branch is pruned as soon as an intermediate fails the
// bound, since any valid chain needs all intermediates to qualify. This
// entry-order-dependent pruning is the specified enumeration, not an
// approximation to repair. Chains are deduplicated by exact path string and
// recorded at every qualifying length along a path.
func ShellChains(g *graph.Graph) [][]string {
	s := &shellSearch{
		g:      g,
		onPath: make(map[string]bool),
		seen:   make(map[string]bool),
	}

	for _, start := range g.AccountIDs() {
		s.path = s.path[:0]
		s.path = append(s.path, start)
		s.onPath[start] = true
		s.walk()
		s.onPath[start] = false
	}

	return s.chains
}

type shellSearch struct {
	g      *graph.Graph
	path   []string
	onPath map[string]bool
	seen   map[string]bool
	chains [][]string
}

func (s *shellSearch) walk() {
	if len(s.path) >= maxChainAccounts {
		return
	}

	last := s.path[len(s.path)-1]

	// Extending past the current tail turns it into an intermediate; prune
	// the whole branch if it cannot qualify.
	if len(s.path) >= 2 && !s.lowActivity(last) {
		return
	}

	for _, next := range s.g.Successors(last) {
		if s.onPath[next] {
			continue
		}

		s.path = append(s.path, next)
		s.onPath[next] = true

		if len(s.path) >= minChainAccounts && s.interiorsQualify() {
			s.record()
		}
		s.walk()

		s.onPath[next] = false
		s.path = s.path[:len(s.path)-1]
	}
}

func (s *shellSearch) lowActivity(accountID string) bool {
	node, ok := s.g.Nodes[accountID]
	if !ok {
		return false
	}
	return node.TotalTxCount <= lowActivityMax
}

// interiorsQualify re-checks every account between the chain's first and
// last against the low-activity bound.
func (s *shellSearch) interiorsQualify() bool {
	for _, id := range s.path[1 : len(s.path)-1] {
		if !s.lowActivity(id) {
			return false
		}
	}
	return true
}

func (s *shellSearch) record() {
	key := strings.Join(s.path, "->")
	if s.seen[key] {
		return
	}
	s.seen[key] = true

	chain := make([]string, len(s.path))
	copy(chain, s.path)
	s.chains = append(s.chains, chain)
}
