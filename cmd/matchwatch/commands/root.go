// Package commands holds the matchwatch command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"matchwatch/internal/app"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "matchwatch",
	Short: "Post finished League of Legends games of tracked players to Telegram",
	Long: `matchwatch tracks Riot accounts per chat and posts a summary of every
game they finish to the chat's configured channel.

Run "matchwatch serve" to start the bot, or "matchwatch poll" to run a
single poll cycle and exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Errors are printed here, not by cobra.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		errorf("%v\n", err)
	}
	return err
}

// SetVersionInfo sets the version shown by --version and the version command.
func SetVersionInfo(v, c, d string) {
	buildInfo = versionInfo{Version: v, Commit: c, Date: d}
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.json", "path to the config file (json or yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "dotenv files loaded before the config (default .env)")
}

func appOptions() app.Options {
	return app.Options{ConfigPath: configPath, DotEnv: envFiles}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

func errorf(format string, a ...any) {
	_, _ = red.Fprintf(os.Stderr, "✗ "+format, a...)
}
