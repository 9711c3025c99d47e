package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

type fakeSource struct {
	ruleMetrics []rules.RuleMetrics
	system      rules.SystemMetrics
	index       rules.IndexStats
	dirty       bool
	rebuilds    uint64
}

func (f *fakeSource) AllRuleMetrics() []rules.RuleMetrics   { return f.ruleMetrics }
func (f *fakeSource) SystemMetrics() rules.SystemMetrics    { return f.system }
func (f *fakeSource) IndexStats() (rules.IndexStats, bool) { return f.index, f.dirty }
func (f *fakeSource) IndexRebuilds() uint64                 { return f.rebuilds }

func newFakeSource() *fakeSource {
	return &fakeSource{
		ruleMetrics: []rules.RuleMetrics{
			{RuleID: "block-exe", Evaluations: 10, Matches: 3},
			{RuleID: "large-upload", Evaluations: 4, Matches: 0},
		},
		system: rules.SystemMetrics{
			Rules:            2,
			TotalEvaluations: 14,
			TotalMatches:     3,
			Samples:          4,
			TotalTime:        10 * time.Millisecond,
			P50:              2 * time.Millisecond,
			P95:              4 * time.Millisecond,
			P99:              4 * time.Millisecond,
		},
		index: rules.IndexStats{
			Rules:          5,
			Global:         2,
			ActionTypes:    1,
			FileExtensions: 2,
			Categories:     3,
		},
		dirty:    true,
		rebuilds: 7,
	}
}

func TestCollector_RuleCounters(t *testing.T) {
	c := NewCollector(newFakeSource())

	expected := `
# HELP agent00_rule_evaluations_total Number of times a rule has been evaluated.
# TYPE agent00_rule_evaluations_total counter
agent00_rule_evaluations_total{rule_id="block-exe"} 10
agent00_rule_evaluations_total{rule_id="large-upload"} 4
# HELP agent00_rule_matches_total Number of evaluations in which a rule matched.
# TYPE agent00_rule_matches_total counter
agent00_rule_matches_total{rule_id="block-exe"} 3
agent00_rule_matches_total{rule_id="large-upload"} 0
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"agent00_rule_evaluations_total", "agent00_rule_matches_total")
	require.NoError(t, err)
}

func TestCollector_DurationSummary(t *testing.T) {
	c := NewCollector(newFakeSource())

	expected := `
# HELP agent00_rule_evaluation_duration_seconds Rule evaluation time over the retained samples of all rules.
# TYPE agent00_rule_evaluation_duration_seconds summary
agent00_rule_evaluation_duration_seconds{quantile="0.5"} 0.002
agent00_rule_evaluation_duration_seconds{quantile="0.95"} 0.004
agent00_rule_evaluation_duration_seconds{quantile="0.99"} 0.004
agent00_rule_evaluation_duration_seconds_sum 0.01
agent00_rule_evaluation_duration_seconds_count 4
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected), "agent00_rule_evaluation_duration_seconds")
	require.NoError(t, err)
}

func TestCollector_Index(t *testing.T) {
	c := NewCollector(newFakeSource())

	expected := `
# HELP agent00_index_dirty 1 when the candidate index will be rebuilt on the next bulk evaluation.
# TYPE agent00_index_dirty gauge
agent00_index_dirty 1
# HELP agent00_index_rebuilds_total Number of candidate index rebuilds.
# TYPE agent00_index_rebuilds_total counter
agent00_index_rebuilds_total 7
# HELP agent00_index_rules Candidate index occupancy by bucket.
# TYPE agent00_index_rules gauge
agent00_index_rules{bucket="action_type"} 1
agent00_index_rules{bucket="category"} 3
agent00_index_rules{bucket="file_extension"} 2
agent00_index_rules{bucket="global"} 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"agent00_index_dirty", "agent00_index_rebuilds_total", "agent00_index_rules")
	require.NoError(t, err)
}

func TestCollector_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(newFakeSource()))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

// A live engine is scraped through the same collector.
func TestCollector_Engine(t *testing.T) {
	engine := rules.NewEngine()
	ruleSet := []*types.Rule{
		{ID: "r1", Name: "deletes", Condition: "action.type == 'delete'", Priority: 50, Confidence: 0.8, Active: true},
		{ID: "r2", Name: "exe", Condition: "file.extension == '.exe'", Priority: 50, Confidence: 0.8, Active: true},
	}
	engine.EvaluateRules(ruleSet, types.DecisionContext{"action": map[string]any{"type": "delete"}})

	c := NewCollector(engine)
	// r1 counters, summary, 4 index buckets, dirty, rebuilds
	assert.Equal(t, 2+1+4+1+1, testutil.CollectAndCount(c))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "agent00_rule_evaluations_total"))
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(newFakeSource()))
	h := Router(reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agent00_rule_evaluations_total{rule_id="block-exe"} 10`)
	assert.Contains(t, string(body), `agent00_index_rules{bucket="global"} 2`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(newFakeSource())
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["agent00_rule_evaluations_total"])
	assert.True(t, names["go_goroutines"])
}
