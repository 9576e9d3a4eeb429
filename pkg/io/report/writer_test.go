package report

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/engine"
	fxio "github.com/hed1ad/fx3analysis/pkg/io"
)

func sampleReport() fxio.Report {
	ok := analysis.Succeeded(analysis.Metrics{"mean": 2.5, "count": 4, "moving_average": []float64{1, 2.25}}, "4 values")
	failed := analysis.Failed(analysis.KindInsufficientData, "need at least 4 items, got 1")

	return fxio.Report{
		Source: "capture.csv",
		Mode:   engine.ModeBatch,
		Items:  4,
		Result: ok,
		Notifications: []engine.Notification{
			{Analyzer: "basic_statistics", Result: ok},
			{Analyzer: "anomaly_detection", Result: failed},
		},
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleReport()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "capture.csv", got["source"])
	assert.NotContains(t, got, "analyzer")

	result := got["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 2.5, result["metrics"].(map[string]any)["mean"])

	notes := got["notifications"].([]any)
	require.Len(t, notes, 2)
	assert.Equal(t, "InsufficientData", notes[1].(map[string]any)["result"].(map[string]any)["kind"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatYAML)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleReport()))

	var got struct {
		Source string `yaml:"source"`
		Items  int    `yaml:"items"`
		Result struct {
			Success bool           `yaml:"success"`
			Metrics map[string]any `yaml:"metrics"`
		} `yaml:"result"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "capture.csv", got.Source)
	assert.Equal(t, 4, got.Items)
	assert.True(t, got.Result.Success)
	assert.Equal(t, 4, got.Result.Metrics["count"])
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatText)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleReport()))

	out := buf.String()
	assert.Regexp(t, `analyzer:\s+all\n`, out)
	assert.Regexp(t, `moving_average\s+\[1 2\.25\]`, out)
	assert.Contains(t, out, "[anomaly_detection]")
	assert.Regexp(t, `status:\s+failed \(InsufficientData\)`, out)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("count")), bytes.Index(buf.Bytes(), []byte("mean")))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: 0.1 + 0.2, want: "0.3"},
		{in: 7, want: "7"},
		{in: "upward", want: "upward"},
		{in: []int{1, 4}, want: "[1 4]"},
		{in: []float64{}, want: "[]"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in))
	}
}

func TestWriteJSONNonFinite(t *testing.T) {
	rep := fxio.Report{
		Source: "overflow.csv",
		Mode:   engine.ModeBatch,
		Result: analysis.Succeeded(analysis.Metrics{
			"sum":            math.Inf(1),
			"min":            math.Inf(-1),
			"variance":       math.NaN(),
			"mean":           1.5,
			"moving_average": []float64{1, math.NaN()},
			"anomaly_values": []float64{2, 3},
		}, "overflow"),
		Notifications: []engine.Notification{
			{Analyzer: "basic_statistics", Result: analysis.Succeeded(analysis.Metrics{"sum": math.Inf(1)}, "")},
		},
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, w.Write(rep))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	metrics := got["result"].(map[string]any)["metrics"].(map[string]any)
	assert.Equal(t, "+Inf", metrics["sum"])
	assert.Equal(t, "-Inf", metrics["min"])
	assert.Equal(t, "NaN", metrics["variance"])
	assert.Equal(t, 1.5, metrics["mean"])
	assert.Equal(t, []any{1.0, "NaN"}, metrics["moving_average"])
	assert.Equal(t, []any{2.0, 3.0}, metrics["anomaly_values"])

	note := got["notifications"].([]any)[0].(map[string]any)
	assert.Equal(t, "+Inf", note["result"].(map[string]any)["metrics"].(map[string]any)["sum"])

	// the caller's report is left untouched
	assert.True(t, math.IsInf(rep.Result.Metrics["sum"].(float64), 1))
}
