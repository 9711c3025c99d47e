package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dgr198213-ui/Agent00/internal/core/db"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

// SQLStore persists rules in the rules table through named queries.
// It implements rules.RuleSource.
//
// Other processes (the CLI, a second replica) may change the table, so
// ListRules also fingerprints what it reads and invalidates when the
// fingerprint moves.
type SQLStore struct {
	queries *db.Queries
	opts    options

	mu   sync.Mutex
	seen uint64
}

// NewSQLStore creates a store over loaded queries.
func NewSQLStore(queries *db.Queries, opts ...Option) *SQLStore {
	return &SQLStore{
		queries: queries,
		opts:    buildOptions("store", opts),
	}
}

// ListRules returns every rule, highest priority first.
func (s *SQLStore) ListRules(ctx context.Context) ([]*types.Rule, error) {
	var ruleSet []*types.Rule
	if err := s.queries.Select(ctx, "list-rules", &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	sum := Fingerprint(ruleSet)
	s.mu.Lock()
	changed := sum != s.seen
	s.seen = sum
	s.mu.Unlock()
	if changed {
		s.opts.logger.Debug("rule set changed", "rules", len(ruleSet), "fingerprint", fmt.Sprintf("%016x", sum))
		s.opts.invalidate()
	}
	return ruleSet, nil
}

// ListByCategory returns the rules of one category.
func (s *SQLStore) ListByCategory(ctx context.Context, category string) ([]*types.Rule, error) {
	var ruleSet []*types.Rule
	if err := s.queries.Select(ctx, "list-rules-by-category", &ruleSet, category); err != nil {
		return nil, fmt.Errorf("failed to list rules in category %q: %w", category, err)
	}
	return ruleSet, nil
}

// Get returns the rule with the given ID, or types.ErrRuleNotFound.
func (s *SQLStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	return s.getBy(ctx, "get-rule", string(id))
}

// GetByName returns the rule with the given name, or types.ErrRuleNotFound.
func (s *SQLStore) GetByName(ctx context.Context, name string) (*types.Rule, error) {
	return s.getBy(ctx, "get-rule-by-name", name)
}

func (s *SQLStore) getBy(ctx context.Context, query, key string) (*types.Rule, error) {
	var rule types.Rule
	err := s.queries.Get(ctx, query, &rule, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", key, err)
	}
	return &rule, nil
}

// Count returns the number of stored rules.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.queries.Get(ctx, "count-rules", &n); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

// Create validates and inserts a rule. An empty ID is replaced by a new
// UUIDv7; timestamps are set from the store clock. The stored rule is
// returned; the argument is not modified.
func (s *SQLStore) Create(ctx context.Context, in *types.Rule) (*types.Rule, error) {
	rule := *in
	if rule.ID == "" {
		rule.ID = types.NewRuleID()
	}
	if err := validateRule(&rule); err != nil {
		return nil, err
	}

	if existing, err := s.GetByName(ctx, rule.Name); err == nil {
		return nil, fmt.Errorf("%w: name %q used by %s", types.ErrDuplicateRule, rule.Name, existing.ID)
	} else if !errors.Is(err, types.ErrRuleNotFound) {
		return nil, err
	}
	if _, err := s.Get(ctx, rule.ID); err == nil {
		return nil, fmt.Errorf("%w: id %s", types.ErrDuplicateRule, rule.ID)
	} else if !errors.Is(err, types.ErrRuleNotFound) {
		return nil, err
	}

	now := s.opts.clock().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if _, err := s.queries.Exec(ctx, "insert-rule",
		rule.ID, rule.Name, rule.Condition, rule.Behavior, rule.Category,
		rule.Priority, rule.Confidence, rule.Active, rule.CreatedAt, rule.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
	}

	s.opts.logger.Info("rule created", "rule_id", rule.ID, "name", rule.Name)
	s.opts.invalidate()
	return &rule, nil
}

// Update replaces every mutable field of an existing rule.
func (s *SQLStore) Update(ctx context.Context, in *types.Rule) (*types.Rule, error) {
	rule := *in
	if err := validateRule(&rule); err != nil {
		return nil, err
	}

	if existing, err := s.GetByName(ctx, rule.Name); err == nil && existing.ID != rule.ID {
		return nil, fmt.Errorf("%w: name %q used by %s", types.ErrDuplicateRule, rule.Name, existing.ID)
	}

	res, err := s.queries.Exec(ctx, "update-rule",
		rule.Name, rule.Condition, rule.Behavior, rule.Category,
		rule.Priority, rule.Confidence, rule.Active, s.opts.clock().UTC(), rule.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule %s: %w", rule.ID, err)
	}
	if err := requireAffected(res, rule.ID); err != nil {
		return nil, err
	}

	s.opts.logger.Info("rule updated", "rule_id", rule.ID)
	s.opts.invalidate()
	return s.Get(ctx, rule.ID)
}

// SetActive enables or disables a rule.
func (s *SQLStore) SetActive(ctx context.Context, id types.RuleID, active bool) error {
	res, err := s.queries.Exec(ctx, "set-rule-active", active, s.opts.clock().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set rule %s active=%t: %w", id, active, err)
	}
	if err := requireAffected(res, id); err != nil {
		return err
	}

	s.opts.logger.Info("rule toggled", "rule_id", id, "active", active)
	s.opts.invalidate()
	return nil
}

// Delete removes a rule.
func (s *SQLStore) Delete(ctx context.Context, id types.RuleID) error {
	res, err := s.queries.Exec(ctx, "delete-rule", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	if err := requireAffected(res, id); err != nil {
		return err
	}

	s.opts.logger.Info("rule deleted", "rule_id", id)
	s.opts.invalidate()
	return nil
}

func requireAffected(res sql.Result, id types.RuleID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	return nil
}
