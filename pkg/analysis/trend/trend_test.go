package trend

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func series(step time.Duration, values ...float64) []analysis.Observation {
	items := make([]analysis.Observation, len(values))
	for i, v := range values {
		items[i] = analysis.Observation{
			Index:     i,
			Timestamp: epoch.Add(time.Duration(i) * step).Format(time.RFC3339Nano),
			Value:     v,
		}
	}
	return items
}

func TestAnalyzeAlwaysFails(t *testing.T) {
	r := New().Analyze(analysis.Observation{Value: 1})
	assert.False(t, r.Success)
	assert.Equal(t, analysis.KindInsufficientData, r.Kind)
	assert.Contains(t, r.Error, "multiple items")
}

func TestAnalyzeBatchDirection(t *testing.T) {
	tests := []struct {
		name          string
		items         []analysis.Observation
		wantDirection string
		wantSlope     float64
	}{
		{
			name:          "upward",
			items:         series(time.Second, 1, 2, 3, 4, 5),
			wantDirection: DirectionUp,
			wantSlope:     1,
		},
		{
			name:          "downward over two-second steps",
			items:         series(2*time.Second, 10, 8, 6, 4),
			wantDirection: DirectionDown,
			wantSlope:     -1,
		},
		{
			name:          "flat",
			items:         series(time.Second, 3, 3, 3),
			wantDirection: DirectionFlat,
			wantSlope:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New().AnalyzeBatch(tt.items)
			require.True(t, r.Success, r.Error)
			assert.Equal(t, tt.wantDirection, r.Metrics["trend_direction"])
			assert.InDelta(t, tt.wantSlope, r.Metrics["slope"], 1e-9)
		})
	}
}

func TestAnalyzeBatchMetrics(t *testing.T) {
	r := New().AnalyzeBatch(series(time.Second, 1, 3, 5, 7, 9, 11))
	require.True(t, r.Success)

	assert.InDelta(t, 2.0, r.Metrics["slope"], 1e-9)
	assert.InDelta(t, 1.0, r.Metrics["intercept"], 1e-9)
	assert.InDelta(t, 1.0, r.Metrics["r_squared"], 1e-9)
	assert.InDelta(t, 2.0, r.Metrics["trend_strength"], 1e-9)
	assert.Equal(t, 6, r.Metrics["data_point_count"])
	assert.InDelta(t, 5.0, r.Metrics["time_span_seconds"], 1e-9)

	ma, ok := r.Metrics["moving_average"].([]float64)
	require.True(t, ok)
	assert.Len(t, ma, 6)
	// window 5, centered: [1,3,5] at index 0
	assert.InDelta(t, 3.0, ma[0], 1e-12)
	assert.InDelta(t, 5.0, ma[2], 1e-12)

	for _, key := range New().SupportedMetrics() {
		assert.Contains(t, r.Metrics, key)
	}
}

func TestAnalyzeBatchConstantSeriesIsFinite(t *testing.T) {
	r := New().AnalyzeBatch(series(time.Second, 7, 7, 7, 7))
	require.True(t, r.Success)

	r2 := r.Metrics["r_squared"].(float64)
	assert.False(t, math.IsNaN(r2) || math.IsInf(r2, 0))
	assert.Equal(t, 1.0, r2)
	assert.Equal(t, 0.0, r.Metrics["trend_strength"])
}

func TestAnalyzeBatchInsufficient(t *testing.T) {
	r := New().AnalyzeBatch(series(time.Second, 1))
	assert.False(t, r.Success)
	assert.True(t, errors.Is(r.Err(), analysis.ErrInsufficientData))

	r = New().AnalyzeBatch(nil)
	assert.False(t, r.Success)
	assert.True(t, errors.Is(r.Err(), analysis.ErrEmptyInput))
}

func TestAnalyzeBatchUnparseableTimestamps(t *testing.T) {
	items := []analysis.Observation{
		{Timestamp: "not a time", Value: 1},
		{Timestamp: "", Value: 2},
		{Timestamp: "yesterday", Value: 3},
	}
	r := New().AnalyzeBatch(items)
	require.True(t, r.Success)
	assert.InDelta(t, 1.0, r.Metrics["slope"], 1e-9)
	assert.Contains(t, r.Description, "one-second spacing")
}

func TestAnalyzeRawData(t *testing.T) {
	a := New(WithClock(func() time.Time { return epoch }))

	r := a.AnalyzeRawData(analysis.EncodeRaw([]float64{10, 8, 6, 4, 2}))
	require.True(t, r.Success)
	assert.InDelta(t, -2.0, r.Metrics["slope"], 1e-9)
	assert.Equal(t, DirectionDown, r.Metrics["trend_direction"])

	r = a.AnalyzeRawData(analysis.EncodeRaw([]float64{1}))
	assert.Equal(t, analysis.KindInsufficientData, r.Kind)

	r = a.AnalyzeRawData(nil)
	assert.Equal(t, analysis.KindEmptyInput, r.Kind)
}

func TestOptions(t *testing.T) {
	a := New(WithMovingAverageWindow(3), WithFlatEpsilon(10))
	r := a.AnalyzeBatch(series(time.Second, 1, 2, 3, 4))
	require.True(t, r.Success)
	assert.Equal(t, DirectionFlat, r.Metrics["trend_direction"])

	ma := r.Metrics["moving_average"].([]float64)
	assert.InDelta(t, 1.5, ma[0], 1e-12)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-03-01T12:00:00Z", want: epoch},
		{in: "2024-03-01T12:00:00.500Z", want: epoch.Add(500 * time.Millisecond)},
		{in: "2024-03-01T14:00:00+02:00", want: epoch},
		{in: "2024-03-01T12:00:00", want: epoch},
		{in: "2024-03-01 12:00:00.25", want: epoch.Add(250 * time.Millisecond)},
		{in: "2024-03-01", want: epoch.Add(-12 * time.Hour)},
		{in: "12:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
