// Package rules evaluates externally configured fraud and review rules
// against a flattened analysis context. Expressions are compiled by a small
// closed grammar (comparisons, boolean logic, arithmetic over dotted
// identifiers) so a misconfigured rule cannot execute arbitrary logic.
package rules

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Rule is one configured rule as it appears in the yaml file.
type Rule struct {
	ID   string `yaml:"id"`
	When string `yaml:"when"`
}

type ruleFile struct {
	Fraud  []Rule `yaml:"fraud"`
	Review []Rule `yaml:"review"`
}

type compiledRule struct {
	id   string
	expr node
}

type ruleSet struct {
	fraud  []compiledRule
	review []compiledRule
}

// Engine holds the cached rule set. The cache is process-wide shared state:
// Reload swaps the whole set under the write lock, so concurrent Evaluate
// calls see either the old or the new rules, never a partial mix.
type Engine struct {
	mu   sync.RWMutex
	path string
	set  *ruleSet
}

// NewEngine loads rules from path. A missing file is not an error: the
// engine starts with an empty set, matching nothing.
func NewEngine(path string) (*Engine, error) {
	e := &Engine{path: path}
	set, err := loadRuleSet(path)
	if err != nil {
		return nil, err
	}
	e.set = set
	return e, nil
}

// Reload re-parses the configuration source and swaps the cached set.
func (e *Engine) Reload() error {
	set, err := loadRuleSet(e.path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.set = set
	e.mu.Unlock()
	slog.Info("Rules reloaded", "fraud", len(set.fraud), "review", len(set.review))
	return nil
}

// Counts returns the number of cached fraud and review rules.
func (e *Engine) Counts() (fraud, review int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.set.fraud), len(e.set.review)
}

// Evaluate runs every cached rule against the context. A matching fraud
// rule contributes its id as a fraud flag, a matching review rule as a
// review flag. A rule that fails to evaluate is logged and treated as
// non-matching; it never fails the request or blocks other rules.
func (e *Engine) Evaluate(ctx Context) (fraudFlags, reviewFlags []string) {
	e.mu.RLock()
	set := e.set
	e.mu.RUnlock()

	for _, r := range set.fraud {
		if matchRule(r, ctx) {
			fraudFlags = append(fraudFlags, r.id)
		}
	}
	for _, r := range set.review {
		if matchRule(r, ctx) {
			reviewFlags = append(reviewFlags, r.id)
		}
	}
	return fraudFlags, reviewFlags
}

func matchRule(r compiledRule, ctx Context) bool {
	v, err := r.expr.eval(ctx)
	if err != nil {
		slog.Warn("Rule evaluation failed", "rule", r.id, "error", err)
		return false
	}
	ok, err := truthy(v)
	if err != nil {
		slog.Warn("Rule evaluation failed", "rule", r.id, "error", err)
		return false
	}
	return ok
}

func loadRuleSet(path string) (*ruleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("Rules file not found, starting with empty set", "path", path)
			return &ruleSet{}, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	set := &ruleSet{}
	set.fraud = compileRules(file.Fraud)
	set.review = compileRules(file.Review)
	slog.Info("Rules loaded", "fraud", len(set.fraud), "review", len(set.review))
	return set, nil
}

// compileRules parses each expression up front. A rule that does not parse
// is dropped with a warning so one bad rule cannot poison the set.
func compileRules(in []Rule) []compiledRule {
	out := make([]compiledRule, 0, len(in))
	for _, r := range in {
		if r.ID == "" || r.When == "" {
			slog.Warn("Skipping rule without id or expression", "rule", r.ID)
			continue
		}
		expr, err := parseExpr(r.When)
		if err != nil {
			slog.Warn("Skipping unparseable rule", "rule", r.ID, "error", err)
			continue
		}
		out = append(out, compiledRule{id: r.ID, expr: expr})
	}
	return out
}
