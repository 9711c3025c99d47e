// internal/types/rules.go
package types

import (
	"fmt"
	"strings"
	"time"
)

/*
 * Rule definitions supplied by the external rule store.
 *
 * The condition string is the persisted "source code" of a rule; the engine
 * parses it on every evaluation and never mutates a Rule. Identity is RuleID.
 *
 * Field constraints:
 *   - Priority: [1, 100]
 *   - Confidence: [0.0, 1.0]
 *   - Condition: non-empty, at most MaxConditionLength bytes
 */

// Rule is a declarative decision rule.
type Rule struct {
	ID         RuleID    `json:"id" yaml:"id" db:"rule_id"`
	Name       string    `json:"name" yaml:"name" db:"name"`
	Condition  string    `json:"condition" yaml:"condition" db:"condition"`
	Behavior   string    `json:"behavior" yaml:"behavior" db:"behavior"`
	Category   string    `json:"category" yaml:"category" db:"category"`
	Priority   int       `json:"priority" yaml:"priority" db:"priority"`
	Confidence float64   `json:"confidence" yaml:"confidence" db:"confidence"`
	Active     bool      `json:"active" yaml:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" yaml:"-" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-" db:"updated_at"`
}

// Validate checks the structural constraints of a rule.
// Condition syntax is checked separately by the decision engine.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if len(r.Name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(r.Name))
	}
	if strings.TrimSpace(r.Condition) == "" {
		return ErrEmptyCondition
	}
	if len(r.Condition) > MaxConditionLength {
		return fmt.Errorf("%w: %d bytes", ErrConditionTooLong, len(r.Condition))
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, r.Priority)
	}
	if r.Confidence < 0 || r.Confidence > 1 || r.Confidence != r.Confidence {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, r.Confidence)
	}
	return nil
}
