// Package metrics exposes Prometheus instrumentation for analysis runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder counts analyzer invocations and their durations.
type Recorder struct {
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
}

// NewRecorder registers the analysis collectors with reg. A nil reg gets a
// private registry so the recorder is always usable.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx3analysis_analyses_total",
				Help: "Total number of analyzer invocations",
			},
			[]string{"analyzer", "mode", "status"}, // mode: single/batch/raw
		),
		AnalysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fx3analysis_analysis_duration_seconds",
				Help:    "Analyzer invocation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
			},
			[]string{"analyzer"},
		),
	}
}

// Observe records one invocation.
func (r *Recorder) Observe(analyzer, mode string, success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	r.AnalysesTotal.WithLabelValues(analyzer, mode, status).Inc()
	r.AnalysisDuration.WithLabelValues(analyzer).Observe(elapsed.Seconds())
}
