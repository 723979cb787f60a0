package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTool(cmd, "get", map[string]any{"id": args[0]})
		},
	}

	RootCmd.AddCommand(cmd)
}
