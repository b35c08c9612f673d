// Package score merges detector output into per-account suspicion scores,
// assigns ring identifiers, and applies the false-positive filter.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// Additive score contributions. Each structural type contributes once per
// account; the total is capped at maxScore.
const (
	pointsCycle             = 45.0
	pointsFanIn             = 30.0
	pointsFanOut            = 30.0
	pointsShellIntermediary = 35.0
	pointsShellEndpoint     = 20.0
	pointsMultiPattern      = 15.0
	pointsVelocity          = 10.0

	maxScore = 100.0
)

const (
	// Velocity bonus: at least velocityThreshold transactions, in either
	// role, inside a rolling velocityWindow.
	velocityWindow    = 24 * time.Hour
	velocityThreshold = 5

	// Smurfing rings cap displayed counterparties to bound output size.
	// Risk scoring still uses the full member set.
	smurfDisplayCap = 20

	// Cycles of four or more accounts raise the ring risk.
	longCycleRiskBonus = 10.0
)

// Internal keys for once-per-account structural contributions.
const (
	typeCycle             = "cycle"
	typeFanIn             = "fan_in"
	typeFanOut            = "fan_out"
	typeShellIntermediary = "shell_intermediary"
	typeShellEndpoint     = "shell_endpoint"
)

// Aggregation accumulates scores, patterns, and rings for one run. It is
// built by Aggregate from the detector outputs, optionally amended with
// custom rule hits, and finalized into the two result lists.
type Aggregation struct {
	g     *graph.Graph
	order []string // account discovery order
	state map[string]*accountState
	rings []*ringState
	stats map[string]*accountStats
}

type accountState struct {
	id       string
	score    float64
	patterns []string
	seen     map[string]bool // pattern tags
	scored   map[string]bool // structural types that already contributed
	ringID   int             // 0 = unassigned
}

type ringState struct {
	id          int
	patternType string
	members     []string // full member set, used for risk scoring
	display     []string // emitted member list
	riskBonus   float64
}

// accountStats are whole-dataset aggregates per account, shared by the
// velocity scan, the merchant filter, and the custom rule engine.
type accountStats struct {
	sentCount     int
	receivedCount int
	totalAmount   float64
	first, last   time.Time
	timestamps    []time.Time
}

// Aggregate runs the scoring passes in the defined precedence order:
// cycles, then smurfing, then shell chains, then the velocity and
// multi-pattern bonuses. Ring creation follows the same order, so an
// account in both a cycle and a smurfing cluster keeps its cycle ring.
func Aggregate(g *graph.Graph, cycles [][]string, flags []detect.SmurfFlag, chains [][]string) *Aggregation {
	a := &Aggregation{
		g:     g,
		state: make(map[string]*accountState),
		stats: buildStats(g),
	}

	a.addCycles(cycles)
	a.addSmurfFlags(flags)
	a.addShellChains(chains)
	a.addVelocity()
	a.addMultiPatternBonus()

	return a
}

func (a *Aggregation) addCycles(cycles [][]string) {
	for _, cycle := range cycles {
		for _, id := range cycle {
			a.tag(id, domain.CyclePattern(len(cycle)))
			a.contribute(id, typeCycle, pointsCycle)
		}

		var bonus float64
		if len(cycle) >= 4 {
			bonus = longCycleRiskBonus
		}
		a.assignRing(cycle, domain.RingCycle, cycle, bonus)
	}
}

func (a *Aggregation) addSmurfFlags(flags []detect.SmurfFlag) {
	for _, flag := range flags {
		patternType := domain.RingFanIn
		tag := domain.PatternFanInSmurfing
		typ, points := typeFanIn, pointsFanIn
		if flag.Direction == detect.FanOut {
			patternType = domain.RingFanOut
			tag = domain.PatternFanOutSmurfing
			typ, points = typeFanOut, pointsFanOut
		}

		a.tag(flag.AccountID, tag)
		a.contribute(flag.AccountID, typ, points)

		members := append([]string{flag.AccountID}, flag.Counterparties...)
		display := members
		if len(flag.Counterparties) > smurfDisplayCap {
			display = members[:smurfDisplayCap+1]
		}
		a.assignRing(members, patternType, display, 0)
	}
}

func (a *Aggregation) addShellChains(chains [][]string) {
	for _, chain := range chains {
		first, last := chain[0], chain[len(chain)-1]
		a.tag(first, domain.PatternShellEndpoint)
		a.contribute(first, typeShellEndpoint, pointsShellEndpoint)

		for _, id := range chain[1 : len(chain)-1] {
			a.tag(id, domain.PatternShellIntermediary)
			a.contribute(id, typeShellIntermediary, pointsShellIntermediary)
		}

		a.tag(last, domain.PatternShellEndpoint)
		a.contribute(last, typeShellEndpoint, pointsShellEndpoint)

		a.assignRing(chain, domain.RingShell, chain, 0)
	}
}

// addVelocity grants the high-velocity bonus to every account with
// velocityThreshold or more transactions inside a rolling 24-hour window.
func (a *Aggregation) addVelocity() {
	for _, id := range a.g.AccountIDs() {
		st := a.stats[id]
		if st == nil || len(st.timestamps) < velocityThreshold {
			continue
		}
		if hasDenseWindow(st.timestamps, velocityWindow, velocityThreshold) {
			a.tag(id, domain.PatternHighVelocity)
			a.account(id).score += pointsVelocity
		}
	}
}

// addMultiPatternBonus adds the one-time bonus for accounts carrying two or
// more distinct structural pattern types.
func (a *Aggregation) addMultiPatternBonus() {
	for _, id := range a.order {
		if len(a.state[id].scored) >= 2 {
			a.state[id].score += pointsMultiPattern
		}
	}
}

// account returns the mutable state for an account, creating it (and
// recording discovery order) on first touch.
func (a *Aggregation) account(id string) *accountState {
	st, ok := a.state[id]
	if !ok {
		st = &accountState{
			id:     id,
			seen:   make(map[string]bool),
			scored: make(map[string]bool),
		}
		a.state[id] = st
		a.order = append(a.order, id)
	}
	return st
}

func (a *Aggregation) tag(id, pattern string) {
	st := a.account(id)
	if !st.seen[pattern] {
		st.seen[pattern] = true
		st.patterns = append(st.patterns, pattern)
	}
}

func (a *Aggregation) contribute(id, structuralType string, points float64) {
	st := a.account(id)
	if !st.scored[structuralType] {
		st.scored[structuralType] = true
		st.score += points
	}
}

// assignRing creates a ring for a detected structure if its primary account
// (the first member) is still unassigned, then stamps the new ring id on
// every member that has none. An account already holding a ring id is never
// moved.
func (a *Aggregation) assignRing(members []string, patternType string, display []string, riskBonus float64) {
	primary := a.account(members[0])
	if primary.ringID != 0 {
		return
	}

	ring := &ringState{
		id:          len(a.rings) + 1,
		patternType: patternType,
		members:     members,
		display:     display,
		riskBonus:   riskBonus,
	}
	a.rings = append(a.rings, ring)

	for _, id := range members {
		st := a.account(id)
		if st.ringID == 0 {
			st.ringID = ring.id
		}
	}
}

// Facts exposes per-account aggregates to the custom rule engine. Scores
// are the capped structural scores; custom points land on top and are
// re-capped at finalization.
type Facts struct {
	AccountID     string
	Score         float64
	TxCount       int
	SentCount     int
	ReceivedCount int
	TotalAmount   float64
	SpanHours     float64
	Patterns      []string
}

// AccountFacts returns facts for every account flagged so far, in discovery
// order.
func (a *Aggregation) AccountFacts() []Facts {
	facts := make([]Facts, 0, len(a.order))
	for _, id := range a.order {
		st := a.state[id]
		stats := a.stats[id]
		f := Facts{
			AccountID: id,
			Score:     capScore(st.score),
			Patterns:  st.patterns,
		}
		if node := a.g.Nodes[id]; node != nil {
			f.TxCount = node.TotalTxCount
		}
		if stats != nil {
			f.SentCount = stats.sentCount
			f.ReceivedCount = stats.receivedCount
			f.TotalAmount = stats.totalAmount
			f.SpanHours = stats.last.Sub(stats.first).Hours()
		}
		facts = append(facts, f)
	}
	return facts
}

// ApplyRuleHit attaches a custom rule tag and its points to an account.
func (a *Aggregation) ApplyRuleHit(hit domain.RuleHit) {
	if _, ok := a.state[hit.AccountID]; !ok {
		return
	}
	if hit.Tag != "" {
		a.tag(hit.AccountID, hit.Tag)
	}
	a.state[hit.AccountID].score += hit.Points
}

// Finalize caps and rounds every score, computes ring risk from the final
// member scores, suppresses merchant-like accounts, and emits the sorted
// account list plus the ring list in discovery order.
func (a *Aggregation) Finalize() ([]domain.SuspiciousAccount, []domain.FraudRing) {
	final := make(map[string]float64, len(a.order))
	for _, id := range a.order {
		final[id] = capScore(a.state[id].score)
	}

	rings := make([]domain.FraudRing, 0, len(a.rings))
	for _, r := range a.rings {
		rings = append(rings, domain.FraudRing{
			ID:          r.id,
			PatternType: r.patternType,
			Members:     r.display,
			RiskScore:   ringRisk(r, final),
		})
	}

	accounts := make([]domain.SuspiciousAccount, 0, len(a.order))
	for _, id := range a.order {
		st := a.state[id]
		if final[id] <= 0 {
			continue
		}
		if a.suppressed(st) {
			continue
		}
		accounts = append(accounts, domain.SuspiciousAccount{
			AccountID: id,
			Score:     final[id],
			Patterns:  st.patterns,
			RingID:    st.ringID,
		})
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Score > accounts[j].Score
	})

	return accounts, rings
}

// ringRisk is 0.6 x max(member scores) + 0.4 x mean(member scores), plus
// any structural bonus, rounded to one decimal and capped at 100.
func ringRisk(r *ringState, scores map[string]float64) float64 {
	var max, sum float64
	for _, id := range r.members {
		s := scores[id]
		if s > max {
			max = s
		}
		sum += s
	}
	mean := sum / float64(len(r.members))
	return capScore(0.6*max + 0.4*mean + r.riskBonus)
}

func buildStats(g *graph.Graph) map[string]*accountStats {
	stats := make(map[string]*accountStats, len(g.Nodes))
	touch := func(id string, at time.Time) *accountStats {
		st, ok := stats[id]
		if !ok {
			st = &accountStats{first: at, last: at}
			stats[id] = st
		}
		if at.Before(st.first) {
			st.first = at
		}
		if at.After(st.last) {
			st.last = at
		}
		st.timestamps = append(st.timestamps, at)
		return st
	}

	for _, tx := range g.Transactions {
		s := touch(tx.Sender, tx.Timestamp)
		s.sentCount++
		s.totalAmount += tx.Amount

		r := touch(tx.Receiver, tx.Timestamp)
		r.receivedCount++
		r.totalAmount += tx.Amount
	}
	return stats
}

// hasDenseWindow reports whether some rolling window of the given span
// (inclusive) holds at least threshold timestamps.
func hasDenseWindow(timestamps []time.Time, span time.Duration, threshold int) bool {
	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	left := 0
	for right := range sorted {
		for sorted[right].Sub(sorted[left]) > span {
			left++
		}
		if right-left+1 >= threshold {
			return true
		}
	}
	return false
}

func capScore(s float64) float64 {
	if s > maxScore {
		s = maxScore
	}
	if s < 0 {
		s = 0
	}
	return math.Round(s*10) / 10
}
