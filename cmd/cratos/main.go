// Command cratos runs the multi-channel AI assistant gateway and ships
// a small operator CLI against its HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:          "cratos",
		Short:        "Cratos - multi-channel AI assistant gateway",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "cratos.yaml", "Path to YAML configuration file")

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newSessionsCmd(),
		newSchedulerCmd(),
		newAuthCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
