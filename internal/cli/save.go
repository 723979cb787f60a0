package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:     "save [content]",
		Aliases: []string{"put"},
		Short:   "Store a memory",
		Long:    "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:     runSave,
	}

	cmd.Flags().StringP("user", "u", "", "Owning user id (empty = global)")
	cmd.Flags().StringP("summary", "s", "", "Short summary")
	cmd.Flags().Float64P("importance", "i", 0.5, "Importance in [0,1]")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")

	RootCmd.AddCommand(cmd)
}

func runSave(cmd *cobra.Command, args []string) {
	content := readContent(args)
	if strings.TrimSpace(content) == "" {
		exitErr("save", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	params := map[string]any{"content": strings.TrimSpace(content)}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		params["user_id"] = v
	}
	if v, _ := cmd.Flags().GetString("summary"); v != "" {
		params["summary"] = v
	}
	if cmd.Flags().Changed("importance") {
		params["importance"], _ = cmd.Flags().GetFloat64("importance")
	}
	if v, _ := cmd.Flags().GetString("tags"); v != "" {
		params["tags"] = splitTags(v)
	}

	runTool(cmd, "save", params)
}

// readContent joins positional args, falling back to piped stdin.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}
