package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage conversation sessions",
	}
	cmd.AddCommand(newSessionsListCmd(), newSessionsCreateCmd(), newSessionsSendCmd(), newSessionsCancelCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var out any
			if err := client.do(cmd.Context(), "GET", "/api/v1/sessions", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newSessionsCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var out any
			if err := client.do(cmd.Context(), "POST", "/api/v1/sessions", map[string]string{"name": name}, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	addClientFlags(cmd)
	return cmd
}

func newSessionsSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <session-id> <text...>",
		Short: "Send a message into a session's lane",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			var out any
			path := fmt.Sprintf("/api/v1/sessions/%s/messages", args[0])
			if err := client.do(cmd.Context(), "POST", path, map[string]string{"text": text}, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newSessionsCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a session's active execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var out any
			path := fmt.Sprintf("/api/v1/sessions/%s/cancel", args[0])
			if err := client.do(cmd.Context(), "POST", path, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	addClientFlags(cmd)
	return cmd
}
