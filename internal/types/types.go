// Package types provides domain models shared across Agent00 components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the decision engine can be embedded without pulling in
// storage or transport deps. ID utilities in ids.go import uuid.
package types

import "time"

// DecisionContext is the runtime data a condition is evaluated against.
// Arbitrary nested tree with no schema; nested objects are map[string]any and
// lists are []any (the shape produced by encoding/json and structpb).
type DecisionContext map[string]any

// DecisionResult is the outcome of evaluating one rule against one context.
// Produced per rule per evaluation call; never persisted by the engine.
type DecisionResult struct {
	RuleID        RuleID
	RuleName      string
	Matched       bool
	Confidence    float64
	Behavior      string
	Reasoning     string
	Timestamp     time.Time
	ExecutionTime time.Duration
}

// Limits enforced on rule definitions before they are stored.
const (
	// MinPriority and MaxPriority bound Rule.Priority.
	MinPriority = 1
	MaxPriority = 100

	// MaxConditionLength caps condition source size.
	// Evaluation cost is linear in condition length, so this bounds per-rule cost.
	MaxConditionLength = 4096

	// MaxNestingDepth caps parenthesis nesting to bound parser recursion.
	MaxNestingDepth = 64

	// MaxNameLength caps rule names.
	MaxNameLength = 256
)
