package iforest

import (
	"fmt"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
)

// Name is the registry name of the analyzer.
const Name = "isolation_forest"

// Analyzer fits a fresh forest to each batch and reports the samples whose
// score reaches the fitted threshold. Features are the primary value followed
// by the auxiliary points every observation in the batch has.
type Analyzer struct {
	opts       []Option
	minSamples int
}

// NewAnalyzer creates an isolation forest analyzer. Batches smaller than
// minSamples fail with InsufficientData.
func NewAnalyzer(minSamples int, opts ...Option) *Analyzer {
	if minSamples < 2 {
		minSamples = 2
	}
	return &Analyzer{
		opts:       opts,
		minSamples: minSamples,
	}
}

// Name returns the registry name.
func (a *Analyzer) Name() string { return Name }

// Description returns a short summary.
func (a *Analyzer) Description() string {
	return "Multi-channel outlier scoring with an isolation forest"
}

// SupportsBatch reports true.
func (a *Analyzer) SupportsBatch() bool { return true }

// SupportedMetrics lists the keys produced by AnalyzeBatch.
func (a *Analyzer) SupportedMetrics() []string {
	return []string{
		"outlier_indices", "outlier_scores", "outlier_count", "outlier_percentage",
		"threshold", "mean_score", "feature_count",
	}
}

// Analyze always fails: a forest is fitted to a batch.
func (a *Analyzer) Analyze(item analysis.Observation) analysis.Result {
	return analysis.Failed(analysis.KindInsufficientData, "isolation forest needs multiple items")
}

// AnalyzeBatch fits and scores the batch.
func (a *Analyzer) AnalyzeBatch(items []analysis.Observation) analysis.Result {
	switch {
	case len(items) == 0:
		return analysis.Failed(analysis.KindEmptyInput, "no items to analyze")
	case len(items) < a.minSamples:
		return analysis.Failed(analysis.KindInsufficientData, "isolation forest needs at least %d items, got %d", a.minSamples, len(items))
	}

	data := features(items)
	f := New(a.opts...)
	if err := f.Fit(data); err != nil {
		return analysis.Failed(analysis.KindEmptyInput, "fit: %v", err)
	}

	scores, err := f.Predict(data)
	if err != nil {
		return analysis.Failed(analysis.KindEmptyInput, "predict: %v", err)
	}
	threshold := f.Threshold()

	var (
		indices   = []int{}
		outScores = []float64{}
		sum       float64
	)
	for i, s := range scores {
		sum += s
		if s >= threshold {
			indices = append(indices, i)
			outScores = append(outScores, s)
		}
	}

	pct := float64(len(indices)) / float64(len(items)) * 100
	metrics := analysis.Metrics{
		"outlier_indices":    indices,
		"outlier_scores":     outScores,
		"outlier_count":      len(indices),
		"outlier_percentage": pct,
		"threshold":          threshold,
		"mean_score":         sum / float64(len(scores)),
		"feature_count":      len(data[0]),
	}
	return analysis.Succeeded(metrics, fmt.Sprintf("%d of %d items score at or above %.3f", len(indices), len(items), threshold))
}

// AnalyzeRawData decodes data into single-feature samples and analyzes them.
func (a *Analyzer) AnalyzeRawData(data []byte) analysis.Result {
	values := analysis.DecodeRaw(data)
	if len(values) == 0 {
		return analysis.Failed(analysis.KindEmptyInput, "empty raw data")
	}

	items := make([]analysis.Observation, len(values))
	for i, v := range values {
		items[i] = analysis.Observation{Index: i, Value: v, Valid: true}
	}
	return a.AnalyzeBatch(items)
}

// features builds equal-width rows of the value plus the auxiliary points
// shared by every item.
func features(items []analysis.Observation) [][]float64 {
	width := len(items[0].Points)
	for _, it := range items[1:] {
		width = min(width, len(it.Points))
	}

	rows := make([][]float64, len(items))
	for i, it := range items {
		row := make([]float64, 0, 1+width)
		row = append(row, it.Value)
		rows[i] = append(row, it.Points[:width]...)
	}
	return rows
}
