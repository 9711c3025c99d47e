package store

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgr198213-ui/Agent00/internal/core/db"
	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

var storeEpoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type countingInvalidator struct {
	n atomic.Int32
}

func (c *countingInvalidator) InvalidateIndex() { c.n.Add(1) }

func (c *countingInvalidator) count() int { return int(c.n.Load()) }

func newTestStore(t *testing.T, opts ...Option) *SQLStore {
	t.Helper()
	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = db.MigrateUp(database)
	require.NoError(t, err)

	queries, err := db.LoadQueries(database)
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return storeEpoch })}, opts...)
	return NewSQLStore(queries, opts...)
}

func sampleRule(name, condition string) *types.Rule {
	return &types.Rule{
		Name:       name,
		Condition:  condition,
		Behavior:   "deny",
		Category:   "security",
		Priority:   80,
		Confidence: 0.9,
		Active:     true,
	}
}

func TestSQLStore_CreateAndGet(t *testing.T) {
	inv := &countingInvalidator{}
	s := newTestStore(t, WithInvalidator(inv))
	ctx := context.Background()

	in := sampleRule("block-exe", "file.extension == '.exe'")
	created, err := s.Create(ctx, in)
	require.NoError(t, err)

	assert.Empty(t, in.ID, "input must not be modified")
	assert.False(t, types.RuleIDTime(created.ID).IsZero(), "generated ID should be a UUIDv7")
	assert.True(t, created.CreatedAt.Equal(storeEpoch))
	assert.Equal(t, 1, inv.count())

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "block-exe", got.Name)
	assert.Equal(t, "file.extension == '.exe'", got.Condition)
	assert.Equal(t, "deny", got.Behavior)
	assert.Equal(t, "security", got.Category)
	assert.Equal(t, 80, got.Priority)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(storeEpoch))

	byName, err := s.GetByName(ctx, "block-exe")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestSQLStore_CreateKeepsExplicitID(t *testing.T) {
	s := newTestStore(t)
	in := sampleRule("explicit", "action.type == 'delete'")
	in.ID = "rule-explicit"

	created, err := s.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, types.RuleID("rule-explicit"), created.ID)
}

func TestSQLStore_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *types.Rule)
		wantErr error
	}{
		{"empty name", func(r *types.Rule) { r.Name = " " }, types.ErrEmptyName},
		{"empty condition", func(r *types.Rule) { r.Condition = "" }, types.ErrEmptyCondition},
		{"syntax error", func(r *types.Rule) { r.Condition = "(a == 1" }, types.ErrInvalidCondition},
		{"unknown character", func(r *types.Rule) { r.Condition = "a == 1 & b == 2" }, types.ErrInvalidCondition},
		{"priority low", func(r *types.Rule) { r.Priority = 0 }, types.ErrInvalidPriority},
		{"priority high", func(r *types.Rule) { r.Priority = 101 }, types.ErrInvalidPriority},
		{"confidence", func(r *types.Rule) { r.Confidence = 1.5 }, types.ErrInvalidConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &countingInvalidator{}
			s := newTestStore(t, WithInvalidator(inv))
			r := sampleRule("r", "a == 1")
			tt.mutate(r)

			_, err := s.Create(context.Background(), r)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, inv.count(), "rejected rules must not invalidate")

			n, err := s.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestSQLStore_CreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, sampleRule("dup", "a == 1"))
	require.NoError(t, err)

	_, err = s.Create(ctx, sampleRule("dup", "b == 2"))
	require.ErrorIs(t, err, types.ErrDuplicateRule)

	sameID := sampleRule("other", "b == 2")
	sameID.ID = first.ID
	_, err = s.Create(ctx, sameID)
	require.ErrorIs(t, err, types.ErrDuplicateRule)
}

func TestSQLStore_Update(t *testing.T) {
	inv := &countingInvalidator{}
	s := newTestStore(t, WithInvalidator(inv))
	ctx := context.Background()

	created, err := s.Create(ctx, sampleRule("large-upload", "file.size > 10MB"))
	require.NoError(t, err)

	changed := *created
	changed.Condition = "file.size > 50MB"
	changed.Priority = 95
	changed.Active = false

	updated, err := s.Update(ctx, &changed)
	require.NoError(t, err)
	assert.Equal(t, "file.size > 50MB", updated.Condition)
	assert.Equal(t, 95, updated.Priority)
	assert.False(t, updated.Active)
	assert.Equal(t, 2, inv.count())

	changed.Condition = "file.size >"
	_, err = s.Update(ctx, &changed)
	require.ErrorIs(t, err, types.ErrInvalidCondition)

	missing := *created
	missing.ID = "does-not-exist"
	missing.Name = "another-name"
	_, err = s.Update(ctx, &missing)
	require.ErrorIs(t, err, types.ErrRuleNotFound)
	assert.Equal(t, 2, inv.count())
}

func TestSQLStore_UpdateNameConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, sampleRule("first", "a == 1"))
	require.NoError(t, err)
	second, err := s.Create(ctx, sampleRule("second", "a == 2"))
	require.NoError(t, err)

	second.Name = "first"
	_, err = s.Update(ctx, second)
	require.ErrorIs(t, err, types.ErrDuplicateRule)
}

func TestSQLStore_SetActiveAndDelete(t *testing.T) {
	inv := &countingInvalidator{}
	s := newTestStore(t, WithInvalidator(inv))
	ctx := context.Background()

	created, err := s.Create(ctx, sampleRule("toggle-me", "a == 1"))
	require.NoError(t, err)

	require.NoError(t, s.SetActive(ctx, created.ID, false))
	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, s.Delete(ctx, created.ID))
	_, err = s.Get(ctx, created.ID)
	require.ErrorIs(t, err, types.ErrRuleNotFound)
	assert.Equal(t, 3, inv.count())

	require.ErrorIs(t, s.SetActive(ctx, created.ID, true), types.ErrRuleNotFound)
	require.ErrorIs(t, s.Delete(ctx, created.ID), types.ErrRuleNotFound)
	assert.Equal(t, 3, inv.count())
}

func TestSQLStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, r := range []*types.Rule{
		{Name: "low", Condition: "a == 1", Category: "ops", Priority: 10, Confidence: 0.5, Active: true},
		{Name: "high", Condition: "a == 2", Category: "security", Priority: 90, Confidence: 0.5, Active: true},
		{Name: "mid", Condition: "a == 3", Category: "security", Priority: 50, Confidence: 0.5},
	} {
		_, err := s.Create(ctx, r)
		require.NoError(t, err)
	}

	all, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{all[0].Name, all[1].Name, all[2].Name})
	assert.False(t, all[1].Active)

	security, err := s.ListByCategory(ctx, "security")
	require.NoError(t, err)
	assert.Len(t, security, 2)

	none, err := s.ListByCategory(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// The engine sees store mutations on its next bulk evaluation.
func TestSQLStore_EngineIntegration(t *testing.T) {
	engine := rules.NewEngine()
	s := newTestStore(t, WithInvalidator(engine))
	ctx := context.Background()
	dctx := types.DecisionContext{"action": map[string]any{"type": "delete"}}

	evaluate := func() rules.Evaluation {
		t.Helper()
		ruleSet, err := s.ListRules(ctx)
		require.NoError(t, err)
		return engine.EvaluateRules(ruleSet, dctx)
	}

	_, err := s.Create(ctx, sampleRule("deletes", "action.type == 'delete'"))
	require.NoError(t, err)

	eval := evaluate()
	require.Len(t, eval.Results, 1)
	assert.Equal(t, "deletes", eval.Results[0].RuleName)

	_, err = s.Create(ctx, sampleRule("admin-deletes", "action.type == 'delete' or user.admin == 1"))
	require.NoError(t, err)

	eval = evaluate()
	assert.Len(t, eval.Results, 2)
	assert.Equal(t, 2, eval.Stats.TotalRules)
	assert.Equal(t, uint64(2), engine.IndexRebuilds())
}

// interleavedSource runs between once, after a listing has been read and
// before the caller evaluates it.
type interleavedSource struct {
	*SQLStore
	between func()
}

func (s *interleavedSource) ListRules(ctx context.Context) ([]*types.Rule, error) {
	ruleSet, err := s.SQLStore.ListRules(ctx)
	if f := s.between; f != nil {
		s.between = nil
		f()
	}
	return ruleSet, err
}

// A request that listed rules before a write must not leave the shared index
// built from its outdated rule set.
func TestSQLStore_DecideAfterInterleavedWrite(t *testing.T) {
	var engine *rules.Engine
	s := newTestStore(t, WithInvalidator(InvalidatorFunc(func() { engine.InvalidateIndex() })))
	src := &interleavedSource{SQLStore: s}
	engine = rules.NewEngine(rules.WithRuleSource(src))
	ctx := context.Background()
	dctx := types.DecisionContext{"action": map[string]any{"type": "delete"}}

	_, err := s.Create(ctx, sampleRule("old", "user.role == 'guest'"))
	require.NoError(t, err)

	src.between = func() {
		_, err := s.Create(ctx, sampleRule("new", "action.type == 'delete'"))
		require.NoError(t, err)
		current, err := engine.Decide(ctx, dctx)
		require.NoError(t, err)
		assert.Len(t, current.Results, 1)
	}

	stale, err := engine.Decide(ctx, dctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Stats.TotalRules)
	assert.Empty(t, stale.Results)

	for i := 0; i < 3; i++ {
		eval, err := engine.Decide(ctx, dctx)
		require.NoError(t, err)
		require.Len(t, eval.Results, 1)
		assert.Equal(t, "new", eval.Results[0].RuleName)
		assert.Equal(t, 2, eval.Stats.TotalRules)
		assert.LessOrEqual(t, eval.Stats.CandidateRules, eval.Stats.TotalRules)
		assert.GreaterOrEqual(t, eval.Stats.IndexEfficiency, 0.0)
	}
	assert.Equal(t, uint64(1), engine.IndexRebuilds())
}

// Writes by another process are detected when the rule set is next listed.
func TestSQLStore_ListRulesDetectsExternalChanges(t *testing.T) {
	inv := &countingInvalidator{}
	s := newTestStore(t, WithInvalidator(inv))
	other := NewSQLStore(s.queries)
	ctx := context.Background()

	_, err := s.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.count(), "first listing establishes the fingerprint")

	created, err := other.Create(ctx, sampleRule("external", "a == 1"))
	require.NoError(t, err)

	_, err = s.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.count())

	_, err = s.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.count(), "unchanged set must not invalidate")

	require.NoError(t, other.SetActive(ctx, created.ID, false))
	_, err = s.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.count())
}

func TestFingerprint(t *testing.T) {
	a := sampleRule("a", "x == 1")
	a.ID = "a"
	b := sampleRule("b", "x == 2")
	b.ID = "b"

	base := Fingerprint([]*types.Rule{a, b})
	assert.Equal(t, base, Fingerprint([]*types.Rule{a, b}))
	assert.NotEqual(t, base, Fingerprint([]*types.Rule{b, a}), "order matters")
	assert.NotEqual(t, base, Fingerprint([]*types.Rule{a}))
	assert.NotEqual(t, base, Fingerprint([]*types.Rule{a, b, nil}))

	changed := *b
	changed.Confidence = 0.91
	assert.NotEqual(t, base, Fingerprint([]*types.Rule{a, &changed}))

	changed = *b
	changed.Active = false
	assert.NotEqual(t, base, Fingerprint([]*types.Rule{a, &changed}))
}
