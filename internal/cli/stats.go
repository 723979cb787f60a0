package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/openmemory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Long:  "Show record counts for the metadata store and the lexical index. The two differ only after an unreconciled failure.",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open store", err)
	}
	defer a.Close()

	stats, err := store.CollectStats(cmd.Context(), a.meta, a.index)
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(cmd, stats)
}
