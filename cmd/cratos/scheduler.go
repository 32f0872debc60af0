package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Manage scheduled tasks",
	}
	cmd.AddCommand(newSchedulerListCmd(), newSchedulerAddCmd(), newSchedulerDeleteCmd())
	return cmd
}

func newSchedulerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var out any
			if err := client.do(cmd.Context(), "GET", "/api/v1/scheduler/tasks", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newSchedulerAddCmd() *cobra.Command {
	var (
		name     string
		schedule string
		prompt   string
		timezone string
		priority int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a scheduled task",
		Example: `  # Every weekday at 9am, local to Seoul
  cratos scheduler add --name standup --schedule "0 9 * * 1-5" --timezone Asia/Seoul --prompt "Summarise overnight alerts"

  # One-shot
  cratos scheduler add --name deploy-check --schedule "@at 2026-03-01T12:00:00Z" --prompt "Verify the deploy"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			body := map[string]any{
				"name":     name,
				"schedule": schedule,
				"prompt":   prompt,
				"timezone": timezone,
				"priority": priority,
			}
			var out any
			if err := client.do(cmd.Context(), "POST", "/api/v1/scheduler/tasks", body, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Task name (required)")
	cmd.Flags().StringVar(&schedule, "schedule", "", `Cron expression, "@every <dur>", or "@at <RFC3339>" (required)`)
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt to run (required)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for cron schedules")
	cmd.Flags().IntVar(&priority, "priority", 0, "Dispatch priority (higher first)")
	addClientFlags(cmd)
	return cmd
}

func newSchedulerDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := client.do(cmd.Context(), "DELETE", fmt.Sprintf("/api/v1/scheduler/tasks/%s", args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}
