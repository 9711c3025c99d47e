// internal/rules/engine.go
package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgr198213-ui/Agent00/internal/types"
)

/*
 * Decision engine.
 *
 * Orchestrates tokenizer -> parser -> evaluator per rule, the candidate index
 * and the metrics store. Explicitly constructed; the rule source, clock and
 * logger are injected.
 *
 * Index state machine: dirty -> clean on rebuild (next bulk evaluation),
 * clean -> dirty on InvalidateIndex. A new engine starts dirty. Rebuilds
 * happen under the write lock; evaluations read a stable *RuleIndex
 * snapshot, so one shared engine is safe for concurrent callers.
 *
 * Every InvalidateIndex bumps a generation. Decide records the generation
 * before listing rules; a rule set listed before a later invalidation is
 * indexed privately for that call and never clears the dirty flag, so the
 * shared index is only ever built from a rule set at least as new as the
 * last invalidation.
 *
 * Error containment: EvaluateRule never returns an error or panics to its
 * caller. Tokenize/parse/evaluate failures (including panics on unexpected
 * context shapes) become a non-matching result whose Reasoning carries the
 * error, and still count as an evaluation in the metrics.
 */

// RuleSource supplies the current rule set.
type RuleSource interface {
	ListRules(ctx context.Context) ([]*types.Rule, error)
}

// Clock returns the current time.
type Clock func() time.Time

// EvaluationStats describes one bulk evaluation.
type EvaluationStats struct {
	TotalRules      int
	ActiveRules     int
	CandidateRules  int
	MatchedRules    int
	EvaluationTime  time.Duration
	IndexEfficiency float64 // 1 - candidates/total; 0 for an empty rule set
}

// Evaluation is the outcome of a bulk evaluation: matches only, ranked.
type Evaluation struct {
	Results []types.DecisionResult
	Stats   EvaluationStats
}

// Validation reports whether a condition is syntactically valid.
type Validation struct {
	Valid bool
	Error string
}

// Engine evaluates rules against decision contexts.
type Engine struct {
	clock   Clock
	source  RuleSource
	logger  *log.Logger
	metrics *MetricsStore

	mu       sync.RWMutex
	index    *RuleIndex
	dirty    bool
	gen      uint64 // bumped by InvalidateIndex
	built    uint64 // gen the shared index was built at
	rebuilds uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for timestamps and timing.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRuleSource sets the source used by Decide.
func WithRuleSource(s RuleSource) Option {
	return func(e *Engine) { e.source = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l.WithPrefix("engine") }
}

// WithMetricsWindow sets the per-rule execution-time sample capacity.
func WithMetricsWindow(n int) Option {
	return func(e *Engine) { e.metrics = NewMetricsStore(n) }
}

// NewEngine creates an engine with a dirty index.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:   time.Now,
		logger:  log.New(io.Discard),
		metrics: NewMetricsStore(DefaultMetricsWindow),
		dirty:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RuleSource returns the source used by Decide, or nil.
func (e *Engine) RuleSource() RuleSource {
	return e.source
}

// ErrNoRuleSource is returned by Decide when no RuleSource was configured.
var ErrNoRuleSource = errors.New("engine has no rule source")

// EvaluateRule evaluates one rule against ctx, timed, and records metrics.
func (e *Engine) EvaluateRule(rule *types.Rule, ctx types.DecisionContext) types.DecisionResult {
	start := e.clock()
	if rule == nil {
		return types.DecisionResult{Reasoning: "Evaluation error: nil rule", Timestamp: start}
	}

	result := types.DecisionResult{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Behavior:  rule.Behavior,
		Timestamp: start,
	}

	matched, err := safeEvaluate(rule.Condition, ctx)
	end := e.clock()
	result.ExecutionTime = end.Sub(start)

	switch {
	case err != nil:
		result.Reasoning = fmt.Sprintf("Evaluation error: %v", err)
		e.logger.Debug("rule evaluation failed", "rule_id", rule.ID, "err", err)
	case matched:
		result.Matched = true
		result.Confidence = rule.Confidence
		result.Reasoning = fmt.Sprintf("Condition matched: %s", rule.Condition)
	default:
		result.Reasoning = fmt.Sprintf("Condition not met: %s", rule.Condition)
	}

	e.metrics.Record(rule.ID, result.Matched, result.ExecutionTime, end)
	return result
}

// safeEvaluate runs the full pipeline, converting panics into errors.
func safeEvaluate(condition string, ctx types.DecisionContext) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()
	return EvaluateCondition(condition, ctx)
}

// EvaluateRules evaluates the candidate subset of ruleSet against ctx and
// returns the matches sorted by descending confidence (ties: higher priority
// first, then rule-set order). ruleSet is taken to be current; callers that
// list rules concurrently with store mutations should use Decide.
func (e *Engine) EvaluateRules(ruleSet []*types.Rule, ctx types.DecisionContext) Evaluation {
	return e.evaluateRules(ruleSet, ctx, e.generation())
}

func (e *Engine) evaluateRules(ruleSet []*types.Rule, ctx types.DecisionContext, gen uint64) Evaluation {
	start := e.clock()

	candidates := e.indexFor(ruleSet, gen).Candidates(ctx)

	stats := EvaluationStats{
		TotalRules:     len(ruleSet),
		CandidateRules: len(candidates),
	}
	for _, r := range ruleSet {
		if r != nil && r.Active {
			stats.ActiveRules++
		}
	}

	type match struct {
		result   types.DecisionResult
		priority int
	}
	var matches []match
	for _, rule := range candidates {
		if !rule.Active {
			continue
		}
		res := e.EvaluateRule(rule, ctx)
		if res.Matched {
			matches = append(matches, match{result: res, priority: rule.Priority})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].result.Confidence != matches[j].result.Confidence {
			return matches[i].result.Confidence > matches[j].result.Confidence
		}
		return matches[i].priority > matches[j].priority
	})

	results := make([]types.DecisionResult, len(matches))
	for i, m := range matches {
		results[i] = m.result
	}

	stats.MatchedRules = len(results)
	stats.EvaluationTime = e.clock().Sub(start)
	if stats.TotalRules > 0 {
		stats.IndexEfficiency = 1 - float64(stats.CandidateRules)/float64(stats.TotalRules)
	}

	return Evaluation{Results: results, Stats: stats}
}

// Decide fetches the current rule set from the configured source and
// evaluates it against dctx.
func (e *Engine) Decide(ctx context.Context, dctx types.DecisionContext) (Evaluation, error) {
	if e.source == nil {
		return Evaluation{}, ErrNoRuleSource
	}
	gen := e.generation()
	ruleSet, err := e.source.ListRules(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to list rules: %w", err)
	}
	return e.evaluateRules(ruleSet, dctx, gen), nil
}

// CandidateRules returns the index candidates for ctx, rebuilding the index
// from ruleSet first if it is dirty.
func (e *Engine) CandidateRules(ruleSet []*types.Rule, ctx types.DecisionContext) []*types.Rule {
	return e.indexFor(ruleSet, e.generation()).Candidates(ctx)
}

func (e *Engine) generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// indexFor returns the index to prune ruleSet with. gen is the generation
// observed before ruleSet was listed. The shared index serves when it is
// clean and built at gen; a dirty index is rebuilt from ruleSet only when no
// invalidation happened since gen. Otherwise ruleSet is already stale and
// gets a private index, leaving the shared one dirty.
func (e *Engine) indexFor(ruleSet []*types.Rule, gen uint64) *RuleIndex {
	e.mu.RLock()
	if !e.dirty && e.built == gen {
		idx := e.index
		e.mu.RUnlock()
		return idx
	}
	e.mu.RUnlock()

	e.mu.Lock()
	if !e.dirty && e.built == gen {
		idx := e.index
		e.mu.Unlock()
		return idx
	}
	if gen != e.gen {
		e.mu.Unlock()
		e.logger.Debug("rule set changed while listing; using a private index")
		return BuildIndex(ruleSet)
	}
	defer e.mu.Unlock()

	e.index = BuildIndex(ruleSet)
	e.dirty = false
	e.built = gen
	e.rebuilds++
	stats := e.index.Stats()
	e.logger.Debug("rule index rebuilt",
		"rules", stats.Rules,
		"global", stats.Global,
		"action_types", stats.ActionTypes,
		"file_extensions", stats.FileExtensions,
	)
	return e.index
}

// InvalidateIndex marks the index dirty; the next bulk evaluation rebuilds it.
// Must be called after any create/update/delete/toggle in the rule store.
func (e *Engine) InvalidateIndex() {
	e.mu.Lock()
	e.dirty = true
	e.gen++
	e.mu.Unlock()
}

// IndexStats reports the current index occupancy and whether it is dirty.
func (e *Engine) IndexStats() (IndexStats, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.index == nil {
		return IndexStats{}, e.dirty
	}
	return e.index.Stats(), e.dirty
}

// IndexRebuilds returns how many times the index has been rebuilt.
func (e *Engine) IndexRebuilds() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rebuilds
}

// ValidateCondition tokenizes and parses without evaluating.
func (e *Engine) ValidateCondition(condition string) Validation {
	if _, err := Parse(condition); err != nil {
		return Validation{Valid: false, Error: err.Error()}
	}
	return Validation{Valid: true}
}

// RuleMetrics returns the metrics of one rule.
func (e *Engine) RuleMetrics(id types.RuleID) (RuleMetrics, bool) {
	return e.metrics.Rule(id)
}

// AllRuleMetrics returns the metrics of every tracked rule.
func (e *Engine) AllRuleMetrics() []RuleMetrics {
	return e.metrics.All()
}

// SystemMetrics returns pooled statistics across all rules.
func (e *Engine) SystemMetrics() SystemMetrics {
	return e.metrics.System()
}

// ClearOldMetrics drops rule metrics not used within maxAge.
func (e *Engine) ClearOldMetrics(maxAge time.Duration) int {
	removed := e.metrics.ClearOlderThan(e.clock().Add(-maxAge))
	if removed > 0 {
		e.logger.Debug("cleared stale rule metrics", "removed", removed, "max_age", maxAge)
	}
	return removed
}
