package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"matchwatch/internal/app"
)

var stopTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the poller until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := app.New(ctx, appOptions())
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			_ = a.Stop(context.Background(), app.StopFatalError)
			return err
		}

		reason := app.StopSignal
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatalError
		}

		sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
		defer scancel()
		if err := a.Stop(sctx, reason); err != nil {
			return err
		}
		if reason == app.StopFatalError {
			return a.Err()
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "upper bound for a graceful shutdown")
	rootCmd.AddCommand(serveCmd)
}
