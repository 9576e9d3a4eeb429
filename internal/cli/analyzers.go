package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAnalyzersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyzers",
		Short: "List the registered analyzers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := a.newEngine()

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBATCH\tDESCRIPTION\tMETRICS")
			for _, name := range e.Names() {
				an, ok := e.Get(name)
				if !ok {
					continue
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", name, an.SupportsBatch(), an.Description(), strings.Join(an.SupportedMetrics(), ","))
			}
			return tw.Flush()
		},
	}
}

// contextWithOptionalTimeout bounds ctx by d when d is positive.
func contextWithOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
