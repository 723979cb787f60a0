package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/openmemory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories from JSON",
		Long:  "Import records from a file or stdin, in the format produced by export. Existing ids are overwritten.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse json", err)
	}

	a, err := openApp()
	if err != nil {
		exitErr("open store", err)
	}
	defer a.Close()

	imported, err := a.eng.Import(cmd.Context(), records)
	if err != nil {
		a.Close()
		exitErr(fmt.Sprintf("import (%d imported)", imported), err)
	}
	printJSON(cmd, map[string]any{"ok": true, "imported": imported})
}
