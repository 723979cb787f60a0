package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id> [content]",
		Short: "Change fields of a memory",
		Long:  "Replace the content, summary, importance or tags of a memory. Only the given fields change; --tags '' clears tags.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().StringP("summary", "s", "", "New summary")
	cmd.Flags().Float64P("importance", "i", 0, "New importance in [0,1]")
	cmd.Flags().StringP("tags", "t", "", "New tags, comma-separated")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	params := map[string]any{"id": args[0]}
	if len(args) > 1 {
		params["content"] = strings.Join(args[1:], " ")
	}
	if cmd.Flags().Changed("summary") {
		params["summary"], _ = cmd.Flags().GetString("summary")
	}
	if cmd.Flags().Changed("importance") {
		params["importance"], _ = cmd.Flags().GetFloat64("importance")
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		params["tags"] = splitTags(v)
	}

	runTool(cmd, "update", params)
}
