package main

import (
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway health and component status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var detailed map[string]any
			if err := client.do(cmd.Context(), "GET", "/api/v1/health/detailed", nil, &detailed); err != nil {
				// Fall back to the unauthenticated probe.
				var basic map[string]any
				if probeErr := client.do(cmd.Context(), "GET", "/api/v1/health", nil, &basic); probeErr == nil {
					return printJSON(cmd, basic)
				}
				return err
			}
			return printJSON(cmd, detailed)
		},
	}
	addClientFlags(cmd)
	return cmd
}
