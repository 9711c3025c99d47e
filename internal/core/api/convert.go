package api

import (
	"time"

	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

// Wire encoding: durations are float milliseconds, timestamps RFC 3339 with
// nanoseconds, numbers float64 (google.protobuf.Value has no integer kind).

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ResultMap encodes a decision result.
func ResultMap(r types.DecisionResult) map[string]any {
	return map[string]any{
		"rule_id":           string(r.RuleID),
		"rule_name":         r.RuleName,
		"matched":           r.Matched,
		"confidence":        r.Confidence,
		"behavior":          r.Behavior,
		"reasoning":         r.Reasoning,
		"timestamp":         timestamp(r.Timestamp),
		"execution_time_ms": millis(r.ExecutionTime),
	}
}

// EvaluationMap encodes a bulk evaluation as {results, stats}.
func EvaluationMap(e rules.Evaluation) map[string]any {
	results := make([]any, len(e.Results))
	for i, r := range e.Results {
		results[i] = ResultMap(r)
	}
	return map[string]any{
		"results": results,
		"stats": map[string]any{
			"total_rules":        e.Stats.TotalRules,
			"active_rules":       e.Stats.ActiveRules,
			"candidate_rules":    e.Stats.CandidateRules,
			"matched_rules":      e.Stats.MatchedRules,
			"evaluation_time_ms": millis(e.Stats.EvaluationTime),
			"index_efficiency":   e.Stats.IndexEfficiency,
		},
	}
}

// RuleMetricsMap encodes one rule's metrics.
func RuleMetricsMap(m rules.RuleMetrics) map[string]any {
	times := make([]any, len(m.ExecutionTimes))
	for i, d := range m.ExecutionTimes {
		times[i] = millis(d)
	}
	return map[string]any{
		"rule_id":            string(m.RuleID),
		"evaluations":        m.Evaluations,
		"matches":            m.Matches,
		"match_rate":         m.MatchRate(),
		"execution_times_ms": times,
		"last_used":          timestamp(m.LastUsed),
	}
}

// SystemMetricsMap encodes pooled metrics plus index state.
func SystemMetricsMap(m rules.SystemMetrics, idx rules.IndexStats, dirty bool) map[string]any {
	return map[string]any{
		"rules":             m.Rules,
		"total_evaluations": m.TotalEvaluations,
		"total_matches":     m.TotalMatches,
		"samples":           m.Samples,
		"total_time_ms":     millis(m.TotalTime),
		"average_time_ms":   millis(m.AverageTime),
		"p50_ms":            millis(m.P50),
		"p95_ms":            millis(m.P95),
		"p99_ms":            millis(m.P99),
		"index": map[string]any{
			"rules":           idx.Rules,
			"global":          idx.Global,
			"action_types":    idx.ActionTypes,
			"file_extensions": idx.FileExtensions,
			"categories":      idx.Categories,
			"dirty":           dirty,
		},
	}
}
