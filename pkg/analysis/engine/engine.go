// Package engine holds named analyzers and dispatches analysis requests to
// one of them or fans out to all of them.
package engine

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/fx3analysis/internal/metrics"
	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/anomaly"
	"github.com/hed1ad/fx3analysis/pkg/analysis/basic"
	"github.com/hed1ad/fx3analysis/pkg/analysis/trend"
)

// Analysis modes, used in logs and metric labels.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
	ModeRaw    = "raw"
)

// Notification carries the unmodified result of one analyzer invocation.
type Notification struct {
	Analyzer string          `json:"analyzer" yaml:"analyzer"`
	Result   analysis.Result `json:"result" yaml:"result"`
}

// NotifyFunc receives notifications synchronously, in invocation order.
type NotifyFunc func(Notification)

// Engine is a registry of named analyzers. It is safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	analyzers map[string]analysis.Analyzer

	logger    *zap.Logger
	recorder  *metrics.Recorder
	observers []NotifyFunc
	extra     []registration
	defaults  bool
}

type registration struct {
	name     string
	analyzer analysis.Analyzer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the Prometheus recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithObserver adds a callback that receives every notification of every call.
func WithObserver(fn NotifyFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.observers = append(e.observers, fn)
		}
	}
}

// WithoutDefaults leaves out the built-in analyzers.
func WithoutDefaults() Option {
	return func(e *Engine) {
		e.defaults = false
	}
}

// WithAnalyzer registers an analyzer after the defaults, replacing a default
// of the same name.
func WithAnalyzer(name string, a analysis.Analyzer) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, registration{name: name, analyzer: a})
	}
}

// New creates an engine with basic_statistics, trend_analysis and
// anomaly_detection registered unless WithoutDefaults is given.
func New(opts ...Option) *Engine {
	e := &Engine{
		analyzers: make(map[string]analysis.Analyzer),
		logger:    zap.NewNop(),
		defaults:  true,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.defaults {
		e.Register(basic.Name, basic.New())
		e.Register(trend.Name, trend.New())
		e.Register(anomaly.Name, anomaly.New())
	}
	for _, r := range e.extra {
		e.Register(r.name, r.analyzer)
	}
	e.extra = nil

	return e
}

// Register binds name to a. A nil analyzer is logged and ignored; an
// existing name is replaced.
func (e *Engine) Register(name string, a analysis.Analyzer) {
	if isNil(a) {
		e.logger.Warn("ignoring nil analyzer", zap.String("analyzer", name))
		return
	}

	e.mu.Lock()
	_, replaced := e.analyzers[name]
	e.analyzers[name] = a
	e.mu.Unlock()

	e.logger.Debug("registered analyzer",
		zap.String("analyzer", name),
		zap.Bool("replaced", replaced),
		zap.Bool("batch", a.SupportsBatch()),
	)
}

// Get returns the analyzer registered under name.
func (e *Engine) Get(name string) (analysis.Analyzer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.analyzers[name]
	return a, ok
}

// Names returns the registered names in sorted order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.analyzers))
	for name := range e.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallOption configures a single analysis call.
type CallOption func(*call)

type call struct {
	notify NotifyFunc
}

// WithNotify sets a callback receiving one notification per analyzer invoked
// by this call.
func WithNotify(fn NotifyFunc) CallOption {
	return func(c *call) {
		c.notify = fn
	}
}

// Analyze runs single-item analysis on the named analyzer, or on every
// analyzer when name is empty.
func (e *Engine) Analyze(item analysis.Observation, name string, opts ...CallOption) analysis.Result {
	return e.dispatch(ModeSingle, name, opts, func(a analysis.Analyzer) analysis.Result {
		return a.Analyze(item)
	})
}

// AnalyzeBatch runs batch analysis on the named analyzer, or on every
// batch-capable analyzer when name is empty.
func (e *Engine) AnalyzeBatch(items []analysis.Observation, name string, opts ...CallOption) analysis.Result {
	return e.dispatch(ModeBatch, name, opts, func(a analysis.Analyzer) analysis.Result {
		return a.AnalyzeBatch(items)
	})
}

// AnalyzeRawData runs raw-byte analysis on the named analyzer, or on every
// analyzer when name is empty.
func (e *Engine) AnalyzeRawData(data []byte, name string, opts ...CallOption) analysis.Result {
	return e.dispatch(ModeRaw, name, opts, func(a analysis.Analyzer) analysis.Result {
		return a.AnalyzeRawData(data)
	})
}

func (e *Engine) dispatch(mode, name string, opts []CallOption, fn func(analysis.Analyzer) analysis.Result) analysis.Result {
	c := &call{}
	for _, opt := range opts {
		opt(c)
	}

	if name != "" {
		return e.named(mode, name, c, fn)
	}
	return e.fanOut(mode, c, fn)
}

func (e *Engine) named(mode, name string, c *call, fn func(analysis.Analyzer) analysis.Result) analysis.Result {
	a, ok := e.Get(name)
	if !ok {
		e.logger.Debug("analyzer not found", zap.String("analyzer", name), zap.String("mode", mode))
		return analysis.Failed(analysis.KindAnalyzerNotFound, "analyzer %q not found", name)
	}
	if mode == ModeBatch && !a.SupportsBatch() {
		return analysis.Failed(analysis.KindUnsupportedOperation, "analyzer %q does not support batch analysis", name)
	}

	return e.invoke(mode, name, a, c, fn)
}

func (e *Engine) fanOut(mode string, c *call, fn func(analysis.Analyzer) analysis.Result) analysis.Result {
	merged := analysis.Metrics{}
	var (
		succeeded []string
		failures  []string
	)

	for _, r := range e.snapshot() {
		if mode == ModeBatch && !r.analyzer.SupportsBatch() {
			continue
		}

		res := e.invoke(mode, r.name, r.analyzer, c, fn)
		if !res.Success {
			failures = append(failures, fmt.Sprintf("%s: %s", r.name, res.Error))
			continue
		}
		succeeded = append(succeeded, r.name)
		for k, v := range res.Metrics {
			merged[r.name+"."+k] = v
		}
	}

	e.logger.Debug("fan-out complete",
		zap.String("mode", mode),
		zap.Strings("succeeded", succeeded),
		zap.Int("failed", len(failures)),
	)

	if len(succeeded) == 0 {
		if len(failures) == 0 {
			return analysis.Failed(analysis.KindAllAnalyzersFailed, "all analyzers failed: no analyzer accepts %s analysis", mode)
		}
		return analysis.Failed(analysis.KindAllAnalyzersFailed, "all analyzers failed: %s", strings.Join(failures, "; "))
	}

	return analysis.Succeeded(merged, fmt.Sprintf("%d of %d analyzers succeeded: %s",
		len(succeeded), len(succeeded)+len(failures), strings.Join(succeeded, ", ")))
}

func (e *Engine) invoke(mode, name string, a analysis.Analyzer, c *call, fn func(analysis.Analyzer) analysis.Result) analysis.Result {
	start := time.Now()
	res := fn(a)
	elapsed := time.Since(start)

	e.recorder.Observe(name, mode, res.Success, elapsed)
	if !res.Success {
		e.logger.Debug("analyzer failed",
			zap.String("analyzer", name),
			zap.String("mode", mode),
			zap.String("kind", string(res.Kind)),
			zap.String("error", res.Error),
		)
	}

	n := Notification{Analyzer: name, Result: res}
	if c.notify != nil {
		c.notify(n)
	}
	for _, obs := range e.observers {
		obs(n)
	}

	return res
}

// snapshot copies the registry in name order so analyzers run without the lock held.
func (e *Engine) snapshot() []registration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]registration, 0, len(e.analyzers))
	for name, a := range e.analyzers {
		out = append(out, registration{name: name, analyzer: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func isNil(a analysis.Analyzer) bool {
	if a == nil {
		return true
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
