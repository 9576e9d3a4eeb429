package analysis

import (
	"errors"
	"fmt"
)

// Kind classifies a failed analysis.
type Kind string

const (
	KindEmptyInput           Kind = "EmptyInput"
	KindInsufficientData     Kind = "InsufficientData"
	KindAnalyzerNotFound     Kind = "AnalyzerNotFound"
	KindUnsupportedOperation Kind = "UnsupportedOperation"
	KindAllAnalyzersFailed   Kind = "AllAnalyzersFailed"
)

// Sentinel errors for use with errors.Is against Result.Err.
var (
	ErrEmptyInput           = &Error{Kind: KindEmptyInput}
	ErrInsufficientData     = &Error{Kind: KindInsufficientData}
	ErrAnalyzerNotFound     = &Error{Kind: KindAnalyzerNotFound}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
	ErrAllAnalyzersFailed   = &Error{Kind: KindAllAnalyzersFailed}
)

// Error is the error form of a failed Result.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Metrics maps a metric name to a float64, int, string, []int or []float64 value.
type Metrics map[string]any

// Result is the tagged outcome of an analysis.
type Result struct {
	Success     bool    `json:"success" yaml:"success"`
	Metrics     Metrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        Kind    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Error       string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(metrics Metrics, description string) Result {
	if metrics == nil {
		metrics = Metrics{}
	}
	return Result{
		Success:     true,
		Metrics:     metrics,
		Description: description,
	}
}

// Failed builds a failed result carrying only an error message.
func Failed(kind Kind, format string, args ...any) Result {
	return Result{
		Kind:  kind,
		Error: fmt.Sprintf(format, args...),
	}
}

// Err returns nil for a successful result and an *Error otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.Kind, Message: r.Error}
}
