package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by keyword",
		Long:  "Rank memories by lexical relevance blended with importance and recency.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("user", "u", "", "Restrict to one user")
	cmd.Flags().StringP("tags", "t", "", "Tag globs, comma-separated (all must match)")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default 5, max 20)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	params := map[string]any{"query": strings.Join(args, " ")}
	addFilters(cmd, params)
	runTool(cmd, "search", params)
}

// addFilters copies the shared --user, --tags and --limit flags.
func addFilters(cmd *cobra.Command, params map[string]any) {
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		params["user_id"] = v
	}
	if v, _ := cmd.Flags().GetString("tags"); v != "" {
		params["tags"] = splitTags(v)
	}
	if cmd.Flags().Changed("limit") {
		params["limit"], _ = cmd.Flags().GetInt("limit")
	}
}
