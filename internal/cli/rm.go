package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a memory from both stores",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTool(cmd, "delete", map[string]any{"id": args[0]})
		},
	}

	RootCmd.AddCommand(cmd)
}
