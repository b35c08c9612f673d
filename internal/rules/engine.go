// Package rules provides the CEL-Go based custom rule engine. Custom rules
// run after the structural detectors, over per-account aggregates, and can
// only add tags and points on top of the structural score.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/score"
)

// Engine compiles and evaluates custom account rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule engine with the account fact variables.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("sent_count", cel.IntType),
		cel.Variable("received_count", cel.IntType),
		cel.Variable("total_amount", cel.DoubleType),
		cel.Variable("span_hours", cel.DoubleType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateAccounts evaluates every loaded rule against every account's
// facts. Rules run in rule-id order and accounts in the given order, so
// hit order is deterministic. Evaluation errors skip the rule for that
// account; a custom rule can never abort a run.
func (e *Engine) EvaluateAccounts(ctx context.Context, accounts []score.Facts) []domain.RuleHit {
	e.mu.RLock()
	ruleIDs := make([]string, 0, len(e.compiledRules))
	for id := range e.compiledRules {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)
	ordered := make([]*CompiledRule, len(ruleIDs))
	for i, id := range ruleIDs {
		ordered[i] = e.compiledRules[id]
	}
	e.mu.RUnlock()

	if len(ordered) == 0 || len(accounts) == 0 {
		return nil
	}

	var hits []domain.RuleHit
	for _, facts := range accounts {
		activation := map[string]any{
			"account_id":     facts.AccountID,
			"score":          facts.Score,
			"tx_count":       facts.TxCount,
			"sent_count":     facts.SentCount,
			"received_count": facts.ReceivedCount,
			"total_amount":   facts.TotalAmount,
			"span_hours":     facts.SpanHours,
			"patterns":       facts.Patterns,
		}

		for _, rule := range ordered {
			out, _, err := rule.Program.Eval(activation)
			if err != nil {
				continue
			}
			if fired, ok := out.(types.Bool); ok && bool(fired) {
				hits = append(hits, domain.RuleHit{
					RuleID:    rule.Config.ID,
					AccountID: facts.AccountID,
					Tag:       rule.Config.Tag,
					Points:    rule.Config.Points,
				})
			}
		}
	}

	return hits
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	configs := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		configs = append(configs, compiled.Config)
	}
	return configs
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
