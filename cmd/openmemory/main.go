package main

import (
	"os"

	"github.com/rcliao/openmemory/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
