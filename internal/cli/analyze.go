package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
	"github.com/hed1ad/fx3analysis/pkg/analysis/engine"
	fxio "github.com/hed1ad/fx3analysis/pkg/io"
	"github.com/hed1ad/fx3analysis/pkg/io/csv"
	"github.com/hed1ad/fx3analysis/pkg/io/pcap"
	"github.com/hed1ad/fx3analysis/pkg/io/report"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a capture",
	}

	cmd.AddCommand(
		newAnalyzeCSVCmd(a),
		newAnalyzePcapCmd(a),
		newAnalyzeRawCmd(a),
	)

	return cmd
}

func newAnalyzeCSVCmd(a *app) *cobra.Command {
	var (
		header bool
		item   int
	)

	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Analyze observations from a CSV file",
		Long:  "Records are index,timestamp,value[,description[,valid[,points...]]]. Malformed records are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := csv.NewReader(args[0], csv.WithHeader(header))
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer r.Close()

			items, err := fxio.Collect(cmd.Context(), r)
			if err != nil {
				return err
			}
			if n := r.Skipped(); n > 0 {
				a.logger.Warn("skipped malformed records", zap.String("file", args[0]), zap.Int("count", n))
			}

			return a.analyzeItems(args[0], items, item)
		},
	}

	cmd.Flags().BoolVar(&header, "header", true, "the first record is a header row")
	cmd.Flags().IntVar(&item, "item", -1, "analyze only the observation at this position")

	return cmd
}

// USB addressing limits for the pcap filters.
const (
	maxDeviceAddress = 127
	maxEndpoint      = 15
)

func newAnalyzePcapCmd(a *app) *cobra.Command {
	var (
		device    int
		endpoint  int
		maxPoints int
		live      bool
		duration  time.Duration
		item      int
	)

	cmd := &cobra.Command{
		Use:   "pcap <file|interface>",
		Short: "Analyze USB request blocks from a usbmon capture",
		Long:  "Each completed URB becomes one observation whose value is the transferred length and whose points are the data bytes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if device > maxDeviceAddress {
				return fmt.Errorf("--device %d out of range: USB device addresses are 0-%d", device, maxDeviceAddress)
			}
			if endpoint > maxEndpoint {
				return fmt.Errorf("--endpoint %d out of range: USB endpoint numbers are 0-%d", endpoint, maxEndpoint)
			}

			var opts []pcap.Option
			if device >= 0 {
				opts = append(opts, pcap.WithDevice(uint8(device)))
			}
			if endpoint >= 0 {
				opts = append(opts, pcap.WithEndpoint(uint8(endpoint)))
			}
			opts = append(opts, pcap.WithMaxPoints(maxPoints))

			var (
				r   *pcap.Reader
				err error
			)
			if live {
				r, err = pcap.NewLiveReader(args[0], 65535, time.Second, opts...)
			} else {
				r, err = pcap.NewFileReader(args[0], opts...)
			}
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			if live {
				var cancel func()
				ctx, cancel = contextWithOptionalTimeout(ctx, duration)
				defer cancel()
			}

			items, err := fxio.Collect(ctx, r)
			if err != nil && !live {
				return err
			}

			return a.analyzeItems(args[0], items, item)
		},
	}

	cmd.Flags().IntVar(&device, "device", -1, "keep only URBs of this USB device address")
	cmd.Flags().IntVar(&endpoint, "endpoint", -1, "keep only URBs on this endpoint number")
	cmd.Flags().IntVar(&maxPoints, "max-points", 0, "cap the data bytes kept per URB (0 keeps all)")
	cmd.Flags().BoolVar(&live, "live", false, "capture live from a usbmon interface")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "live capture length (0 runs until interrupted)")
	cmd.Flags().IntVar(&item, "item", -1, "analyze only the observation at this position")

	return cmd
}

func newAnalyzeRawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "raw <file>",
		Short: "Analyze an undecoded sample buffer",
		Long:  "The file is read as native-endian float64 samples, or as unsigned bytes when it holds no finite float64.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			return a.run(args[0], engine.ModeRaw, len(data), func(e *engine.Engine, opt engine.CallOption) analysis.Result {
				return e.AnalyzeRawData(data, a.analyzer, opt)
			})
		},
	}
}

// analyzeItems runs batch analysis, or single-item analysis when pos selects
// one observation.
func (a *app) analyzeItems(source string, items []analysis.Observation, pos int) error {
	if pos < 0 {
		return a.run(source, engine.ModeBatch, len(items), func(e *engine.Engine, opt engine.CallOption) analysis.Result {
			return e.AnalyzeBatch(items, a.analyzer, opt)
		})
	}

	if pos >= len(items) {
		return fmt.Errorf("--item %d out of range: %s has %d observations", pos, source, len(items))
	}
	item := items[pos]
	return a.run(source, engine.ModeSingle, 1, func(e *engine.Engine, opt engine.CallOption) analysis.Result {
		return e.Analyze(item, a.analyzer, opt)
	})
}

// run executes one analysis, writes its report and exports metrics. A failed
// result is reported and then returned as an error.
func (a *app) run(source, mode string, items int, fn func(*engine.Engine, engine.CallOption) analysis.Result) (err error) {
	defer func() {
		if merr := a.exportMetrics(); merr != nil && err == nil {
			err = merr
		}
	}()

	w, err := report.NewWriter(a.stdout, a.output)
	if err != nil {
		return err
	}

	rep := fxio.Report{
		Source:   source,
		Analyzer: a.analyzer,
		Mode:     mode,
		Items:    items,
	}

	start := time.Now()
	rep.Result = fn(a.newEngine(), engine.WithNotify(func(n engine.Notification) {
		rep.Notifications = append(rep.Notifications, n)
	}))

	a.logger.Info("analysis complete",
		zap.String("source", source),
		zap.String("mode", mode),
		zap.Int("items", items),
		zap.Bool("success", rep.Result.Success),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := w.Write(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if !rep.Result.Success {
		return fmt.Errorf("analysis failed: %w", rep.Result.Err())
	}
	return nil
}
