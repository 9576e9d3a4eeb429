// Package anomaly flags outlying observations with a global z-score detector
// and a local moving-window detector.
package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/numeric"
)

// Name is the registry name of the analyzer.
const Name = "anomaly_detection"

const (
	minItems = 4

	// zeroSpread is the standard deviation below which z-scores are meaningless.
	zeroSpread = 1e-10
)

// ZScore returns the indices whose absolute z-score against the whole
// sequence exceeds threshold. A sequence without spread yields no indices.
func ZScore(values []float64, threshold float64) []int {
	mean, sd := numeric.MeanStdDev(values)
	if sd < zeroSpread {
		return nil
	}

	var out []int
	for i, v := range values {
		if math.Abs(v-mean)/sd > threshold {
			out = append(out, i)
		}
	}
	return out
}

// MovingWindow returns the indices that deviate from their centered
// neighbourhood of width window, the point itself excluded. Deviation is a
// z-score against the neighbourhood when it has spread, and the absolute
// difference from its mean otherwise.
func MovingWindow(values []float64, window int, threshold float64) []int {
	n := len(values)
	if n < 2 || window <= 0 {
		return nil
	}

	half := window / 2
	if half == 0 {
		half = 1
	}

	var out []int
	neighbours := make([]float64, 0, 2*half)
	for i, v := range values {
		neighbours = neighbours[:0]
		for j := max(0, i-half); j <= min(n-1, i+half); j++ {
			if j != i {
				neighbours = append(neighbours, values[j])
			}
		}
		if len(neighbours) == 0 {
			continue
		}

		mean, err := stats.Mean(neighbours)
		if err != nil {
			continue
		}
		sd, err := stats.StandardDeviationPopulation(neighbours)
		if err != nil {
			continue
		}

		diff := math.Abs(v - mean)
		if sd < zeroSpread {
			if diff > threshold {
				out = append(out, i)
			}
			continue
		}
		if diff/sd > threshold {
			out = append(out, i)
		}
	}
	return out
}

// Analyzer unions the flags of the z-score and moving-window detectors.
type Analyzer struct {
	zThreshold      float64
	window          int
	windowThreshold float64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithZScoreThreshold sets the global z-score threshold.
func WithZScoreThreshold(t float64) Option {
	return func(a *Analyzer) {
		a.zThreshold = t
	}
}

// WithWindow sets the moving-window width.
func WithWindow(n int) Option {
	return func(a *Analyzer) {
		a.window = n
	}
}

// WithWindowThreshold sets the moving-window threshold.
func WithWindowThreshold(t float64) Option {
	return func(a *Analyzer) {
		a.windowThreshold = t
	}
}

// New creates an anomaly analyzer with the given options.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		zThreshold:      3.0,
		window:          5,
		windowThreshold: 2.0,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Name returns the registry name.
func (a *Analyzer) Name() string { return Name }

// Description returns a short summary.
func (a *Analyzer) Description() string {
	return "Outlier detection by global z-score and centered moving window"
}

// SupportsBatch reports true.
func (a *Analyzer) SupportsBatch() bool { return true }

// SupportedMetrics lists the keys produced by AnalyzeBatch.
func (a *Analyzer) SupportedMetrics() []string {
	return []string{
		"anomaly_indices", "anomaly_values", "anomaly_count", "anomaly_percentage",
		"zscore_anomaly_count", "ma_anomaly_count",
	}
}

// Analyze always fails: outliers are relative to a batch.
func (a *Analyzer) Analyze(item analysis.Observation) analysis.Result {
	return analysis.Failed(analysis.KindInsufficientData, "anomaly detection needs multiple items")
}

// AnalyzeBatch runs both detectors over the primary values.
func (a *Analyzer) AnalyzeBatch(items []analysis.Observation) analysis.Result {
	return a.analyze(analysis.PrimaryValues(items))
}

// AnalyzeRawData decodes data and analyzes the values as a batch.
func (a *Analyzer) AnalyzeRawData(data []byte) analysis.Result {
	values := analysis.DecodeRaw(data)
	if len(values) == 0 {
		return analysis.Failed(analysis.KindEmptyInput, "empty raw data")
	}
	return a.analyze(values)
}

func (a *Analyzer) analyze(values []float64) analysis.Result {
	n := len(values)
	switch {
	case n == 0:
		return analysis.Failed(analysis.KindEmptyInput, "no items to analyze")
	case n < minItems:
		return analysis.Failed(analysis.KindInsufficientData, "anomaly detection needs at least %d items, got %d", minItems, n)
	}

	zs := ZScore(values, a.zThreshold)
	ma := MovingWindow(values, a.window, a.windowThreshold)

	set := make(map[int]struct{}, len(zs)+len(ma))
	for _, i := range zs {
		set[i] = struct{}{}
	}
	for _, i := range ma {
		set[i] = struct{}{}
	}

	indices := make([]int, 0, len(set))
	for i := range set {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	anomalous := make([]float64, len(indices))
	for k, i := range indices {
		anomalous[k] = values[i]
	}

	pct := float64(len(indices)) / float64(n) * 100
	metrics := analysis.Metrics{
		"anomaly_indices":      indices,
		"anomaly_values":       anomalous,
		"anomaly_count":        len(indices),
		"anomaly_percentage":   pct,
		"zscore_anomaly_count": len(zs),
		"ma_anomaly_count":     len(ma),
	}
	return analysis.Succeeded(metrics, fmt.Sprintf("%d anomalies in %d values (%.1f%%)", len(indices), n, pct))
}
