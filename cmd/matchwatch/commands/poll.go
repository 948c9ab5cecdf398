package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"matchwatch/internal/app"
	"matchwatch/internal/poller"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll cycle, post any finished games and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := app.New(ctx, appOptions())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		rep, err := a.RunOnce(ctx)
		printReport(cmd.OutOrStdout(), rep)
		return err
	},
}

func printReport(w io.Writer, rep poller.CycleReport) {
	if rep.Skipped {
		_, _ = yellow.Fprintf(w, "⚠️  cycle skipped: %s\n", rep.SkipReason)
		return
	}
	_, _ = green.Fprintf(w, "✓ cycle %s finished in %s\n", rep.ID, rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  tenants %d, players %d\n", rep.Tenants, rep.Entities)
	fmt.Fprintf(w, "  notified %d, baselined %d, suppressed %d, unchanged %d, evicted %d, failed %d\n",
		rep.Notified, rep.Baselined, rep.Suppressed, rep.Unchanged, rep.Evicted, rep.Failed)
	for _, e := range rep.Errors {
		_, _ = red.Fprintf(w, "  error: %s\n", e)
	}
	if rep.SaveError != "" {
		_, _ = red.Fprintf(w, "  save failed: %s\n", rep.SaveError)
	}
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
