// Package report renders analysis reports as JSON, YAML or aligned text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/engine"
	fxio "github.com/hed1ad/fx3analysis/pkg/io"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// Writer writes reports to an underlying stream.
type Writer struct {
	out    io.Writer
	format string
}

// NewWriter creates a writer for format.
func NewWriter(out io.Writer, format string) (*Writer, error) {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
	return &Writer{out: out, format: format}, nil
}

var _ fxio.Writer = (*Writer)(nil)

// Write renders one report.
func (w *Writer) Write(r fxio.Report) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")
		return enc.Encode(finiteReport(r))
	case FormatYAML:
		enc := yaml.NewEncoder(w.out)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w.out, r)
	}
}

// finiteReport returns a copy of r whose non-finite metric values are
// replaced by the strings "NaN", "+Inf" and "-Inf", which JSON can carry.
func finiteReport(r fxio.Report) fxio.Report {
	r.Result = finiteResult(r.Result)
	if r.Notifications != nil {
		notes := make([]engine.Notification, len(r.Notifications))
		for i, n := range r.Notifications {
			notes[i] = engine.Notification{Analyzer: n.Analyzer, Result: finiteResult(n.Result)}
		}
		r.Notifications = notes
	}
	return r
}

func finiteResult(res analysis.Result) analysis.Result {
	if res.Metrics == nil {
		return res
	}
	metrics := make(analysis.Metrics, len(res.Metrics))
	for k, v := range res.Metrics {
		metrics[k] = finiteValue(v)
	}
	res.Metrics = metrics
	return res
}

func finiteValue(v any) any {
	switch x := v.(type) {
	case float64:
		if s, ok := nonFinite(x); ok {
			return s
		}
	case []float64:
		for _, f := range x {
			if _, ok := nonFinite(f); ok {
				out := make([]any, len(x))
				for i, g := range x {
					out[i] = finiteValue(g)
				}
				return out
			}
		}
	}
	return v
}

func nonFinite(f float64) (string, bool) {
	switch {
	case math.IsNaN(f):
		return "NaN", true
	case math.IsInf(f, 1):
		return "+Inf", true
	case math.IsInf(f, -1):
		return "-Inf", true
	}
	return "", false
}

func writeText(out io.Writer, r fxio.Report) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	analyzer := r.Analyzer
	if analyzer == "" {
		analyzer = "all"
	}
	fmt.Fprintf(tw, "source:\t%s\n", r.Source)
	fmt.Fprintf(tw, "analyzer:\t%s\n", analyzer)
	fmt.Fprintf(tw, "mode:\t%s\n", r.Mode)
	fmt.Fprintf(tw, "items:\t%d\n", r.Items)
	writeResult(tw, "", r.Result)

	for _, n := range r.Notifications {
		fmt.Fprintf(tw, "\n[%s]\n", n.Analyzer)
		writeResult(tw, "  ", n.Result)
	}

	return tw.Flush()
}

func writeResult(tw io.Writer, indent string, res analysis.Result) {
	if !res.Success {
		fmt.Fprintf(tw, "%sstatus:\tfailed (%s)\n", indent, res.Kind)
		fmt.Fprintf(tw, "%serror:\t%s\n", indent, res.Error)
		return
	}

	fmt.Fprintf(tw, "%sstatus:\tok\n", indent)
	if res.Description != "" {
		fmt.Fprintf(tw, "%sdescription:\t%s\n", indent, res.Description)
	}

	keys := make([]string, 0, len(res.Metrics))
	for k := range res.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s%s\t%s\n", indent, k, formatValue(res.Metrics[k]))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.6g", x)
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = fmt.Sprintf("%.6g", f)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
