package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/openmemory/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [description]",
		Short: "Assemble relevant memories for a task",
		Long:  "Search and score memories, then greedily pack them into a token budget.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().StringP("user", "u", "", "Restrict to one user")
	cmd.Flags().StringSliceP("tags", "t", nil, "Tag globs (all must match)")
	cmd.Flags().IntP("budget", "b", engine.DefaultContextBudget, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	budget, _ := cmd.Flags().GetInt("budget")

	a, err := openApp()
	if err != nil {
		exitErr("open store", err)
	}
	defer a.Close()

	result, err := a.eng.Context(cmd.Context(), engine.ContextParams{
		Query:  strings.Join(args, " "),
		UserID: user,
		Tags:   tags,
		Budget: budget,
	})
	if err != nil {
		a.Close()
		exitErr("context", err)
	}
	printJSON(cmd, result)
}
