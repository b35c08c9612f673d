// Package detect implements the three structural pattern detectors. Each
// detector reads only the immutable graph snapshot and returns an
// independent result structure, so the three can run concurrently and be
// merged by a single aggregation step.
package detect

import (
	"strings"

	"github.com/opensource-finance/harrier/internal/graph"
)

const (
	// Cycle length bounds, counted in distinct accounts.
	minCycleLen = 3
	maxCycleLen = 5
)

// Cycles enumerates all directed cycles of 3 to 5 distinct accounts,
// deduplicated up to rotation. Money-flow direction is preserved: a cycle
// and its reverse are distinct occurrences and each is reported only if the
// directed search finds it.
//
// Every account is tried as a start; the depth-first search follows outgoing
// edges, never revisits an account on the current path, and is depth-capped
// at maxCycleLen to bound cost on dense graphs. Search order is
// deterministic (sorted accounts, sorted adjacency), so cycle discovery
// order is stable across runs.
func Cycles(g *graph.Graph) [][]string {
	d := &cycleSearch{
		g:      g,
		onPath: make(map[string]bool),
		seen:   make(map[string]bool),
	}

	for _, start := range g.AccountIDs() {
		d.start = start
		d.path = d.path[:0]
		d.path = append(d.path, start)
		d.onPath[start] = true
		d.walk()
		d.onPath[start] = false
	}

	return d.cycles
}

type cycleSearch struct {
	g      *graph.Graph
	start  string
	path   []string
	onPath map[string]bool
	seen   map[string]bool
	cycles [][]string
}

func (d *cycleSearch) walk() {
	last := d.path[len(d.path)-1]

	for _, next := range d.g.Successors(last) {
		if next == d.start {
			if len(d.path) >= minCycleLen {
				d.record()
			}
			continue
		}
		if d.onPath[next] || len(d.path) >= maxCycleLen {
			continue
		}

		d.path = append(d.path, next)
		d.onPath[next] = true
		d.walk()
		d.onPath[next] = false
		d.path = d.path[:len(d.path)-1]
	}
}

// record canonicalizes the current path by rotating the lexicographically
// smallest account to the front and keeps the first occurrence only.
func (d *cycleSearch) record() {
	canon := canonicalRotation(d.path)
	key := strings.Join(canon, "->")
	if d.seen[key] {
		return
	}
	d.seen[key] = true
	d.cycles = append(d.cycles, canon)
}

func canonicalRotation(cycle []string) []string {
	min := 0
	for i := 1; i < len(cycle); i++ {
		if cycle[i] < cycle[min] {
			min = i
		}
	}

	out := make([]string, 0, len(cycle))
	out = append(out, cycle[min:]...)
	out = append(out, cycle[:min]...)
	return out
}
