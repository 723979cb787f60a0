package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export every record as a JSON array, oldest first. Filter by user with -u.",
		Run:   runExport,
	}

	cmd.Flags().StringP("user", "u", "", "Filter by user")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")

	a, err := openApp()
	if err != nil {
		exitErr("open store", err)
	}
	defer a.Close()

	records, err := a.meta.ExportAll(cmd.Context(), user)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(cmd, records)
}
