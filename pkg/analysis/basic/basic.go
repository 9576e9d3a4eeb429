// Package basic implements descriptive statistics over observations.
package basic

import (
	"fmt"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/numeric"
)

// Name is the registry name of the analyzer.
const Name = "basic_statistics"

var statKeys = []string{"count", "min", "max", "range", "sum", "mean", "median", "variance", "std_dev"}

// Analyzer computes count, extrema, mean, median and spread.
type Analyzer struct{}

// New creates a basic statistics analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Name returns the registry name.
func (a *Analyzer) Name() string { return Name }

// Description returns a short summary.
func (a *Analyzer) Description() string {
	return "Descriptive statistics: count, min, max, range, sum, mean, median, variance, standard deviation"
}

// SupportsBatch reports true.
func (a *Analyzer) SupportsBatch() bool { return true }

// SupportedMetrics lists the keys produced by Analyze.
func (a *Analyzer) SupportedMetrics() []string {
	return append([]string(nil), statKeys...)
}

// Analyze computes statistics over the primary value and auxiliary points of item.
func (a *Analyzer) Analyze(item analysis.Observation) analysis.Result {
	values := item.Values()
	metrics := analysis.Metrics{}
	putStats(metrics, "", numeric.Basic(values))
	return analysis.Succeeded(metrics, fmt.Sprintf("statistics of %d values from item %d", len(values), item.Index))
}

// AnalyzeBatch computes statistics over all pooled values (all.*) and over
// the primary values only (main.*).
func (a *Analyzer) AnalyzeBatch(items []analysis.Observation) analysis.Result {
	if len(items) == 0 {
		return analysis.Failed(analysis.KindEmptyInput, "no items to analyze")
	}

	all := analysis.AllValues(items)
	metrics := analysis.Metrics{
		"item_count":       len(items),
		"data_point_count": len(all),
	}
	putStats(metrics, "all.", numeric.Basic(all))
	putStats(metrics, "main.", numeric.Basic(analysis.PrimaryValues(items)))

	return analysis.Succeeded(metrics, fmt.Sprintf("statistics of %d items (%d data points)", len(items), len(all)))
}

// AnalyzeRawData decodes data and computes statistics over the decoded values.
func (a *Analyzer) AnalyzeRawData(data []byte) analysis.Result {
	if len(data) == 0 {
		return analysis.Failed(analysis.KindEmptyInput, "empty raw data")
	}

	values := analysis.DecodeRaw(data)
	if len(values) == 0 {
		return analysis.Failed(analysis.KindEmptyInput, "no numeric values in %d bytes", len(data))
	}

	metrics := analysis.Metrics{"raw_byte_count": len(data)}
	putStats(metrics, "", numeric.Basic(values))
	return analysis.Succeeded(metrics, fmt.Sprintf("statistics of %d values decoded from %d bytes", len(values), len(data)))
}

func putStats(m analysis.Metrics, prefix string, s numeric.Stats) {
	m[prefix+"count"] = s.Count
	m[prefix+"min"] = s.Min
	m[prefix+"max"] = s.Max
	m[prefix+"range"] = s.Range
	m[prefix+"sum"] = s.Sum
	m[prefix+"mean"] = s.Mean
	m[prefix+"median"] = s.Median
	m[prefix+"variance"] = s.Variance
	m[prefix+"std_dev"] = s.StdDev
}
