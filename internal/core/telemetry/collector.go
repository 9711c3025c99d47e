// Package telemetry exposes decision engine state as Prometheus metrics.
//
// Nothing is recorded on the evaluation path: the collector reads the
// engine's metrics store and index on every scrape, so the exported values
// always agree with what the decision API reports.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dgr198213-ui/Agent00/internal/rules"
)

const namespace = "agent00"

// Source is the engine state read on scrape. *rules.Engine implements it.
type Source interface {
	AllRuleMetrics() []rules.RuleMetrics
	SystemMetrics() rules.SystemMetrics
	IndexStats() (rules.IndexStats, bool)
	IndexRebuilds() uint64
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source Source

	evaluations *prometheus.Desc
	matches     *prometheus.Desc
	duration    *prometheus.Desc
	indexRules  *prometheus.Desc
	indexDirty  *prometheus.Desc
	rebuilds    *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		evaluations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "rule", "evaluations_total"),
			"Number of times a rule has been evaluated.",
			[]string{"rule_id"}, nil,
		),
		matches: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "rule", "matches_total"),
			"Number of evaluations in which a rule matched.",
			[]string{"rule_id"}, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "rule", "evaluation_duration_seconds"),
			"Rule evaluation time over the retained samples of all rules.",
			nil, nil,
		),
		indexRules: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "index", "rules"),
			"Candidate index occupancy by bucket.",
			[]string{"bucket"}, nil,
		),
		indexDirty: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "index", "dirty"),
			"1 when the candidate index will be rebuilt on the next bulk evaluation.",
			nil, nil,
		),
		rebuilds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "index", "rebuilds_total"),
			"Number of candidate index rebuilds.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.evaluations
	ch <- c.matches
	ch <- c.duration
	ch <- c.indexRules
	ch <- c.indexDirty
	ch <- c.rebuilds
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.source.AllRuleMetrics() {
		id := string(m.RuleID)
		ch <- prometheus.MustNewConstMetric(c.evaluations, prometheus.CounterValue, float64(m.Evaluations), id)
		ch <- prometheus.MustNewConstMetric(c.matches, prometheus.CounterValue, float64(m.Matches), id)
	}

	sys := c.source.SystemMetrics()
	ch <- prometheus.MustNewConstSummary(c.duration,
		uint64(sys.Samples), sys.TotalTime.Seconds(),
		map[float64]float64{
			0.5:  sys.P50.Seconds(),
			0.95: sys.P95.Seconds(),
			0.99: sys.P99.Seconds(),
		},
	)

	stats, dirty := c.source.IndexStats()
	for bucket, n := range map[string]int{
		"global":         stats.Global,
		"action_type":    stats.ActionTypes,
		"file_extension": stats.FileExtensions,
		"category":       stats.Categories,
	} {
		ch <- prometheus.MustNewConstMetric(c.indexRules, prometheus.GaugeValue, float64(n), bucket)
	}

	var d float64
	if dirty {
		d = 1
	}
	ch <- prometheus.MustNewConstMetric(c.indexDirty, prometheus.GaugeValue, d)
	ch <- prometheus.MustNewConstMetric(c.rebuilds, prometheus.CounterValue, float64(c.source.IndexRebuilds()))
}

// NewRegistry returns a registry with the engine collector and the standard
// Go runtime and process collectors.
func NewRegistry(source Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
