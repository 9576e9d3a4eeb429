package basic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
)

func TestAnalyze(t *testing.T) {
	a := New()
	r := a.Analyze(analysis.Observation{Index: 3, Value: 1, Points: []float64{2, 3, 4}})

	require.True(t, r.Success)
	assert.Equal(t, 4, r.Metrics["count"])
	assert.Equal(t, 1.0, r.Metrics["min"])
	assert.Equal(t, 4.0, r.Metrics["max"])
	assert.Equal(t, 3.0, r.Metrics["range"])
	assert.Equal(t, 10.0, r.Metrics["sum"])
	assert.InDelta(t, 2.5, r.Metrics["mean"], 1e-12)
	assert.InDelta(t, 2.5, r.Metrics["median"], 1e-12)
	assert.InDelta(t, 1.25, r.Metrics["variance"], 1e-12)
	assert.NotEmpty(t, r.Description)
}

func TestAnalyzeReportsEverySupportedMetric(t *testing.T) {
	a := New()
	r := a.Analyze(analysis.Observation{Value: 42})
	require.True(t, r.Success)

	for _, key := range a.SupportedMetrics() {
		assert.Contains(t, r.Metrics, key)
	}
}

func TestAnalyzeBatch(t *testing.T) {
	items := []analysis.Observation{
		{Index: 0, Value: 1, Points: []float64{10}},
		{Index: 1, Value: 2, Points: []float64{20, 30}},
		{Index: 2, Value: 3},
	}

	r := New().AnalyzeBatch(items)
	require.True(t, r.Success)

	assert.Equal(t, 3, r.Metrics["item_count"])
	assert.Equal(t, 6, r.Metrics["data_point_count"])

	assert.Equal(t, 6, r.Metrics["all.count"])
	assert.Equal(t, 30.0, r.Metrics["all.max"])
	assert.InDelta(t, 11.0, r.Metrics["all.mean"], 1e-12)

	assert.Equal(t, 3, r.Metrics["main.count"])
	assert.Equal(t, 3.0, r.Metrics["main.max"])
	assert.InDelta(t, 2.0, r.Metrics["main.mean"], 1e-12)
	assert.InDelta(t, 2.0, r.Metrics["main.median"], 1e-12)

	for _, key := range New().SupportedMetrics() {
		assert.Contains(t, r.Metrics, "all."+key)
		assert.Contains(t, r.Metrics, "main."+key)
	}
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	r := New().AnalyzeBatch(nil)
	assert.False(t, r.Success)
	assert.Nil(t, r.Metrics)
	assert.True(t, errors.Is(r.Err(), analysis.ErrEmptyInput))
}

func TestAnalyzeRawData(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		wantOK    bool
		wantCount int
		wantMean  float64
	}{
		{
			name:      "float64 buffer",
			data:      analysis.EncodeRaw([]float64{1, 2, 3, 4}),
			wantOK:    true,
			wantCount: 4,
			wantMean:  2.5,
		},
		{
			name:      "byte fallback",
			data:      []byte{10, 20, 30},
			wantOK:    true,
			wantCount: 3,
			wantMean:  20,
		},
		{
			name:   "empty",
			data:   []byte{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New().AnalyzeRawData(tt.data)
			require.Equal(t, tt.wantOK, r.Success)
			if !tt.wantOK {
				assert.Equal(t, analysis.KindEmptyInput, r.Kind)
				return
			}
			assert.Equal(t, tt.wantCount, r.Metrics["count"])
			assert.InDelta(t, tt.wantMean, r.Metrics["mean"], 1e-12)
			assert.Equal(t, len(tt.data), r.Metrics["raw_byte_count"])
		})
	}
}

func TestCapabilities(t *testing.T) {
	a := New()
	assert.Equal(t, Name, a.Name())
	assert.True(t, a.SupportsBatch())
	assert.NotEmpty(t, a.Description())

	var _ analysis.Analyzer = a
}

func BenchmarkAnalyzeBatch(b *testing.B) {
	items := make([]analysis.Observation, 5000)
	for i := range items {
		items[i] = analysis.Observation{Index: i, Value: float64(i % 97), Points: []float64{float64(i % 13)}}
	}
	a := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.AnalyzeBatch(items)
	}
}
