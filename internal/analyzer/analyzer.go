// Package analyzer runs the full batch analysis pipeline: graph build,
// parallel pattern detection, score aggregation, custom rules, and the
// false-positive filter.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/score"
)

// ErrInvariant marks a broken internal invariant. It is a programming
// defect, not a recoverable condition: the run aborts rather than emitting
// partial output.
var ErrInvariant = errors.New("analysis invariant violation")

// Analyzer executes analysis runs. A run is pure and deterministic given
// its input; re-invocation with the same transaction set reproduces the
// same scores, ring ids, and ordering.
type Analyzer struct {
	rules *rules.Engine // optional custom rule engine
}

// New creates an analyzer. The rule engine may be nil.
func New(engine *rules.Engine) *Analyzer {
	return &Analyzer{rules: engine}
}

// Run analyzes one complete transaction set and returns the ranked account
// list, the ring list, and the run summary. An empty input yields empty
// lists and zero counters.
func (a *Analyzer) Run(ctx context.Context, tenantID string, transactions []domain.Transaction) (*domain.AnalysisResult, error) {
	start := time.Now()

	g := graph.Build(transactions)
	if err := validate(g); err != nil {
		return nil, err
	}

	// The detectors read only the immutable graph snapshot and write to
	// independent result structures, merged afterwards in one step.
	var (
		wg     sync.WaitGroup
		cycles [][]string
		flags  []detect.SmurfFlag
		chains [][]string
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		cycles = detect.Cycles(g)
	}()
	go func() {
		defer wg.Done()
		flags = detect.Smurfing(g)
	}()
	go func() {
		defer wg.Done()
		chains = detect.ShellChains(g)
	}()
	wg.Wait()

	agg := score.Aggregate(g, cycles, flags, chains)

	if a.rules != nil && a.rules.RulesCount() > 0 {
		hits := a.rules.EvaluateAccounts(ctx, agg.AccountFacts())
		for _, hit := range hits {
			agg.ApplyRuleHit(hit)
		}
	}

	accounts, rings := agg.Finalize()

	result := &domain.AnalysisResult{
		ID:                 uuid.New().String(),
		TenantID:           tenantID,
		CreatedAt:          time.Now().UTC(),
		SuspiciousAccounts: accounts,
		Rings:              rings,
		Summary: domain.Summary{
			TotalAccounts:     len(g.Nodes),
			FlaggedAccounts:   len(accounts),
			RingCount:         len(rings),
			ProcessingSeconds: math.Round(time.Since(start).Seconds()*10) / 10,
		},
	}

	slog.Debug("analysis run complete",
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"transactions", len(transactions),
		"accounts", result.Summary.TotalAccounts,
		"flagged", result.Summary.FlaggedAccounts,
		"rings", result.Summary.RingCount,
		"cycles", len(cycles),
		"smurf_flags", len(flags),
		"shell_chains", len(chains),
	)

	return result, nil
}

// validate checks the node map for edges referencing accounts absent from
// the registry.
func validate(g *graph.Graph) error {
	for id, node := range g.Nodes {
		for out := range node.Outgoing {
			if _, ok := g.Nodes[out]; !ok {
				return fmt.Errorf("%w: edge %s->%s references unknown account", ErrInvariant, id, out)
			}
		}
		for in := range node.Incoming {
			if _, ok := g.Nodes[in]; !ok {
				return fmt.Errorf("%w: edge %s->%s references unknown account", ErrInvariant, in, id)
			}
		}
	}
	return nil
}
