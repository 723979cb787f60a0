package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().StringP("user", "u", "", "Restrict to one user")
	cmd.Flags().StringP("tags", "t", "", "Tag globs, comma-separated (all must match)")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default 20, max 100)")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	params := map[string]any{}
	addFilters(cmd, params)
	runTool(cmd, "list", params)
}
