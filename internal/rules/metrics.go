// internal/rules/metrics.go
package rules

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dgr198213-ui/Agent00/internal/types"
)

/*
 * Per-rule execution statistics.
 *
 * Each rule gets a RuleMetrics entry on its first evaluation. Durations are
 * kept in a fixed-capacity ring (oldest evicted). System metrics pool every
 * retained sample across rules and take percentiles by sorting the pool and
 * indexing at floor(n*p), so p50 <= p95 <= p99 always holds.
 *
 * Entries are only removed by ClearOlderThan (TTL sweep).
 */

// DefaultMetricsWindow is the per-rule sample capacity.
const DefaultMetricsWindow = 100

// RuleMetrics is a snapshot of one rule's statistics.
type RuleMetrics struct {
	RuleID         types.RuleID
	Evaluations    uint64
	Matches        uint64
	ExecutionTimes []time.Duration // oldest first
	LastUsed       time.Time
}

// MatchRate is matches over evaluations, 0 when never evaluated.
func (m RuleMetrics) MatchRate() float64 {
	if m.Evaluations == 0 {
		return 0
	}
	return float64(m.Matches) / float64(m.Evaluations)
}

// SystemMetrics aggregates all rules.
type SystemMetrics struct {
	Rules            int
	TotalEvaluations uint64
	TotalMatches     uint64
	Samples          int
	TotalTime        time.Duration
	AverageTime      time.Duration
	P50              time.Duration
	P95              time.Duration
	P99              time.Duration
}

// ring is a fixed-capacity duration buffer.
type ring struct {
	buf  []time.Duration
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]time.Duration, capacity)}
}

func (r *ring) push(d time.Duration) {
	r.buf[r.next] = d
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// appendTo appends samples oldest first.
func (r *ring) appendTo(dst []time.Duration) []time.Duration {
	if !r.full {
		return append(dst, r.buf[:r.next]...)
	}
	dst = append(dst, r.buf[r.next:]...)
	return append(dst, r.buf[:r.next]...)
}

type ruleStats struct {
	evaluations uint64
	matches     uint64
	times       *ring
	lastUsed    time.Time
}

// MetricsStore tracks per-rule statistics. Safe for concurrent use.
type MetricsStore struct {
	mu     sync.RWMutex
	window int
	rules  map[types.RuleID]*ruleStats
}

// NewMetricsStore creates a store keeping window samples per rule.
// Non-positive windows fall back to DefaultMetricsWindow.
func NewMetricsStore(window int) *MetricsStore {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	return &MetricsStore{
		window: window,
		rules:  make(map[types.RuleID]*ruleStats),
	}
}

// Record counts one evaluation attempt for a rule.
func (s *MetricsStore) Record(id types.RuleID, matched bool, elapsed time.Duration, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rules[id]
	if !ok {
		st = &ruleStats{times: newRing(s.window)}
		s.rules[id] = st
	}
	st.evaluations++
	if matched {
		st.matches++
	}
	st.times.push(elapsed)
	st.lastUsed = at
}

// Rule returns a snapshot of one rule's metrics.
func (s *MetricsStore) Rule(id types.RuleID) (RuleMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.rules[id]
	if !ok {
		return RuleMetrics{}, false
	}
	return snapshot(id, st), true
}

// All returns snapshots of every rule, ordered by rule ID.
func (s *MetricsStore) All() []RuleMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RuleMetrics, 0, len(s.rules))
	for id, st := range s.rules {
		out = append(out, snapshot(id, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

func snapshot(id types.RuleID, st *ruleStats) RuleMetrics {
	return RuleMetrics{
		RuleID:         id,
		Evaluations:    st.evaluations,
		Matches:        st.matches,
		ExecutionTimes: st.times.appendTo(make([]time.Duration, 0, st.times.len())),
		LastUsed:       st.lastUsed,
	}
}

// System pools every retained sample and computes aggregate statistics.
func (s *MetricsStore) System() SystemMetrics {
	s.mu.RLock()
	var m SystemMetrics
	pool := make([]time.Duration, 0, len(s.rules)*s.window)
	for _, st := range s.rules {
		m.TotalEvaluations += st.evaluations
		m.TotalMatches += st.matches
		pool = st.times.appendTo(pool)
	}
	m.Rules = len(s.rules)
	s.mu.RUnlock()

	m.Samples = len(pool)
	if len(pool) == 0 {
		return m
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })
	for _, d := range pool {
		m.TotalTime += d
	}
	m.AverageTime = m.TotalTime / time.Duration(len(pool))
	m.P50 = percentile(pool, 0.50)
	m.P95 = percentile(pool, 0.95)
	m.P99 = percentile(pool, 0.99)
	return m
}

// percentile indexes a sorted sample at floor(n*p), clamped to the last element.
func percentile(sorted []time.Duration, p float64) time.Duration {
	i := int(math.Floor(float64(len(sorted)) * p))
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// ClearOlderThan drops entries last used before cutoff and returns how many
// were removed.
func (s *MetricsStore) ClearOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, st := range s.rules {
		if st.lastUsed.Before(cutoff) {
			delete(s.rules, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked rules.
func (s *MetricsStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}
