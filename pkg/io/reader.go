// Package io provides capture ingestion and report output for analysis runs.
package io

import (
	"context"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/engine"
)

// Reader yields the observations of one capture.
type Reader interface {
	// Read returns the complete capture.
	Read() ([]analysis.Observation, error)

	// Stream returns a channel of observations, closed at end of input or when
	// ctx is done.
	Stream(ctx context.Context) (<-chan analysis.Observation, error)

	// Err returns the error that ended the stream early, once its channel
	// is closed. It is nil when the input was read to the end.
	Err() error

	// Close releases resources.
	Close() error
}

// Writer renders analysis reports.
type Writer interface {
	// Write outputs a single report.
	Write(report Report) error
}

// Report is the output of one analysis run.
type Report struct {
	Source        string                `json:"source" yaml:"source"`
	Analyzer      string                `json:"analyzer,omitempty" yaml:"analyzer,omitempty"`
	Mode          string                `json:"mode" yaml:"mode"`
	Items         int                   `json:"items" yaml:"items"`
	Result        analysis.Result       `json:"result" yaml:"result"`
	Notifications []engine.Notification `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// Collect drains r.Stream until the stream ends. It returns the
// observations received so far together with the reader's error, or with
// ctx.Err() when ctx is done first.
func Collect(ctx context.Context, r Reader) ([]analysis.Observation, error) {
	ch, err := r.Stream(ctx)
	if err != nil {
		return nil, err
	}

	var out []analysis.Observation
	for obs := range ch {
		out = append(out, obs)
	}
	if err := r.Err(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
