// Package trend characterizes the direction and strength of a linear trend
// in a timestamped series.
package trend

import (
	"fmt"
	"math"
	"time"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/numeric"
)

// Name is the registry name of the analyzer.
const Name = "trend_analysis"

const (
	DirectionUp   = "upward"
	DirectionDown = "downward"
	DirectionFlat = "flat"
)

const minItems = 2

// timestampLayouts are tried in order when parsing Observation.Timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Analyzer fits a least-squares line against elapsed time.
type Analyzer struct {
	maWindow    int
	flatEpsilon float64
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMovingAverageWindow sets the upper bound of the moving-average window.
func WithMovingAverageWindow(n int) Option {
	return func(a *Analyzer) {
		a.maWindow = n
	}
}

// WithFlatEpsilon sets the slope magnitude at or below which a trend is flat.
func WithFlatEpsilon(eps float64) Option {
	return func(a *Analyzer) {
		a.flatEpsilon = eps
	}
}

// WithClock sets the clock used to synthesize timestamps for raw data.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// New creates a trend analyzer with the given options.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		maWindow:    5,
		flatEpsilon: 1e-4,
		now:         time.Now,
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
	return "Linear trend over time: slope, intercept, r-squared, direction, strength, moving average"
}

// SupportsBatch reports true.
func (a *Analyzer) SupportsBatch() bool { return true }

// SupportedMetrics lists the keys produced by AnalyzeBatch.
func (a *Analyzer) SupportedMetrics() []string {
	return []string{
		"slope", "intercept", "r_squared", "trend_direction", "trend_strength",
		"moving_average", "data_point_count", "time_span_seconds",
	}
}

// Analyze always fails: a trend needs multiple items.
func (a *Analyzer) Analyze(item analysis.Observation) analysis.Result {
	return analysis.Failed(analysis.KindInsufficientData, "trend analysis needs multiple items")
}

// AnalyzeBatch fits the primary values against seconds elapsed since the
// first timestamp.
func (a *Analyzer) AnalyzeBatch(items []analysis.Observation) analysis.Result {
	switch {
	case len(items) == 0:
		return analysis.Failed(analysis.KindEmptyInput, "no items to analyze")
	case len(items) < minItems:
		return analysis.Failed(analysis.KindInsufficientData, "trend analysis needs at least %d items, got %d", minItems, len(items))
	}

	x, parsed := timeAxis(items)
	y := analysis.PrimaryValues(items)

	slope, intercept := numeric.LinearRegression(x, y)
	r2 := numeric.RSquared(x, y, slope, intercept)

	window := min(a.maWindow, len(y))
	direction := a.direction(slope)

	metrics := analysis.Metrics{
		"slope":             slope,
		"intercept":         intercept,
		"r_squared":         r2,
		"trend_direction":   direction,
		"trend_strength":    math.Abs(slope) * r2,
		"moving_average":    numeric.MovingAverage(y, window),
		"data_point_count":  len(y),
		"time_span_seconds": x[len(x)-1] - x[0],
	}

	desc := fmt.Sprintf("%s trend over %d items (slope %.6g/s, r^2 %.4f)", direction, len(items), slope, r2)
	if !parsed {
		desc += "; timestamps unparseable, one-second spacing assumed"
	}
	return analysis.Succeeded(metrics, desc)
}

// AnalyzeRawData decodes data and analyzes it on a synthetic one-second
// timeline starting at the analyzer clock's current time.
func (a *Analyzer) AnalyzeRawData(data []byte) analysis.Result {
	values := analysis.DecodeRaw(data)
	if len(values) == 0 {
		return analysis.Failed(analysis.KindEmptyInput, "empty raw data")
	}

	start := a.now()
	items := make([]analysis.Observation, len(values))
	for i, v := range values {
		items[i] = analysis.Observation{
			Index:     i,
			Timestamp: start.Add(time.Duration(i) * time.Second).Format(time.RFC3339Nano),
			Value:     v,
			Valid:     true,
		}
	}
	return a.AnalyzeBatch(items)
}

func (a *Analyzer) direction(slope float64) string {
	switch {
	case slope > a.flatEpsilon:
		return DirectionUp
	case slope < -a.flatEpsilon:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// timeAxis returns seconds elapsed since the first item. When any timestamp
// fails to parse, the axis falls back to the item positions and parsed is false.
func timeAxis(items []analysis.Observation) (axis []float64, parsed bool) {
	axis = make([]float64, len(items))

	var first time.Time
	for i, it := range items {
		ts, err := ParseTimestamp(it.Timestamp)
		if err != nil {
			for j := range axis {
				axis[j] = float64(j)
			}
			return axis, false
		}
		if i == 0 {
			first = ts
		}
		axis[i] = ts.Sub(first).Seconds()
	}
	return axis, true
}

// ParseTimestamp parses the ISO-8601 forms accepted for Observation.Timestamp.
// Zone-less forms are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
