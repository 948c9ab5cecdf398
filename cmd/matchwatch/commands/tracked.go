package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"matchwatch/internal/app"
	"matchwatch/internal/tracking"
	logx "matchwatch/pkg/logx"
)

var trackedTenant string

var trackedCmd = &cobra.Command{
	Use:   "tracked",
	Short: "Print the tracked players from the configured storage",
	Long: `Print every tenant with its destination and tracked players.

Reads storage only; neither Telegram nor the Riot API is contacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := app.LoadConfig(configPath, false, envFiles...)
		if err != nil {
			return err
		}
		store, backend, err := app.OpenStore(cmd.Context(), cfg, logx.Nop())
		if backend != nil {
			defer func() { _ = backend.Close() }()
		}
		if err != nil {
			return err
		}

		var tenants []tracking.Tenant
		if trackedTenant != "" {
			tenants = append(tenants, store.Get(trackedTenant))
		} else {
			for _, id := range store.Tenants() {
				tenants = append(tenants, store.Get(id))
			}
		}
		printTenants(cmd.OutOrStdout(), tenants)
		return nil
	},
}

func printTenants(w io.Writer, tenants []tracking.Tenant) {
	if len(tenants) == 0 {
		fmt.Fprintln(w, "No tenants.")
		return
	}
	for i, t := range tenants {
		if i > 0 {
			fmt.Fprintln(w)
		}
		_, _ = cyan.Fprintf(w, "%s", t.ID)
		if t.Destination == "" {
			_, _ = yellow.Fprintln(w, "  (no channel)")
		} else {
			fmt.Fprintf(w, "  -> %s\n", t.Destination)
		}
		ents := t.SortedEntities()
		if len(ents) == 0 {
			_, _ = faint.Fprintln(w, "  nothing tracked")
			continue
		}
		for _, e := range ents {
			last := e.LastMatchID
			if last == "" {
				last = "no baseline"
			}
			fmt.Fprintf(w, "  %-28s ", e.DisplayID)
			_, _ = faint.Fprintln(w, last)
		}
	}
}

func init() {
	trackedCmd.Flags().StringVarP(&trackedTenant, "tenant", "t", "", "only show this tenant")
	rootCmd.AddCommand(trackedCmd)
}
