// Package analysis defines the observation, result and analyzer types shared by
// every analyzer and by the engine that orchestrates them.
package analysis

// Observation is one data point of a time-ordered capture.
type Observation struct {
	// Index is the sequence position assigned by the caller.
	Index int `json:"index" yaml:"index"`
	// Timestamp is an ISO-8601 time label. Only the trend analyzer reads it.
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	// Value is the primary scalar measurement.
	Value float64 `json:"value" yaml:"value"`
	// Description is free text, opaque to the analyzers.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Points holds auxiliary readings co-located with Value.
	Points []float64 `json:"points,omitempty" yaml:"points,omitempty"`
	// Valid is asserted by the caller. Analyzers do not filter on it.
	Valid bool `json:"valid" yaml:"valid"`
}

// Values returns Value followed by Points in a new slice.
func (o Observation) Values() []float64 {
	out := make([]float64, 0, 1+len(o.Points))
	out = append(out, o.Value)
	return append(out, o.Points...)
}

// Analyzer is the common interface for all analysis strategies.
type Analyzer interface {
	// Name returns the default registry name of the analyzer.
	Name() string

	// Description returns a short human-readable summary.
	Description() string

	// Analyze computes metrics for a single observation.
	Analyze(item Observation) Result

	// AnalyzeBatch computes metrics over an ordered set of observations.
	AnalyzeBatch(items []Observation) Result

	// AnalyzeRawData computes metrics over an undecoded byte buffer.
	AnalyzeRawData(data []byte) Result

	// SupportsBatch reports whether AnalyzeBatch is meaningful for this analyzer.
	SupportsBatch() bool

	// SupportedMetrics lists the metric keys a successful result may carry.
	SupportedMetrics() []string
}

// PrimaryValues extracts Value from every observation.
func PrimaryValues(items []Observation) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = it.Value
	}
	return out
}

// AllValues pools Value and Points of every observation, in order.
func AllValues(items []Observation) []float64 {
	n := 0
	for _, it := range items {
		n += 1 + len(it.Points)
	}
	out := make([]float64, 0, n)
	for _, it := range items {
		out = append(out, it.Value)
		out = append(out, it.Points...)
	}
	return out
}
