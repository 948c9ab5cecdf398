package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version string
	Commit  string
	Date    string
}

var buildInfo = versionInfo{Version: "dev", Commit: "none", Date: "unknown"}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "matchwatch %s\n", buildInfo.Version)
		fmt.Fprintf(w, "  commit: %s\n", buildInfo.Commit)
		fmt.Fprintf(w, "  built:  %s\n", buildInfo.Date)
		fmt.Fprintf(w, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
