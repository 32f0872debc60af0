package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cratos-run/cratos/internal/auth"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored service credentials",
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthGetCmd(), newAuthListCmd(), newAuthDeleteCmd())
	return cmd
}

func credentialStore() (*auth.EncryptedFileStore, error) {
	masterKey := os.Getenv("CRATOS_MASTER_KEY")
	if masterKey == "" {
		return nil, fmt.Errorf("CRATOS_MASTER_KEY is not set")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return auth.NewEncryptedFileStore(filepath.Join(home, ".cratos", "credentials.enc"), masterKey)
}

func newAuthSetCmd() *cobra.Command {
	var value string
	cmd := &cobra.Command{
		Use:   "set <service> <account>",
		Short: "Store a credential (value prompted without echo when omitted)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore()
			if err != nil {
				return err
			}
			secret := strings.TrimSpace(value)
			if secret == "" {
				fd := int(os.Stdin.Fd())
				if !term.IsTerminal(fd) {
					return fmt.Errorf("no --value given and stdin is not a terminal")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Value for %s/%s: ", args[0], args[1])
				raw, err := term.ReadPassword(fd)
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				secret = strings.TrimSpace(string(raw))
			}
			if secret == "" {
				return fmt.Errorf("value is required")
			}
			if err := store.Store(args[0], args[1], secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credential for %s/%s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "Credential value (prompted when omitted)")
	return cmd
}

func newAuthGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <service> <account>",
		Short: "Print a stored credential",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore()
			if err != nil {
				return err
			}
			value, err := store.Get(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials (values hidden)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore()
			if err != nil {
				return err
			}
			creds, err := store.List()
			if err != nil {
				return err
			}
			if len(creds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No credentials stored.")
				return nil
			}
			for _, cred := range creds {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", cred.Service, cred.Account)
			}
			return nil
		},
	}
}

func newAuthDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <service> <account>",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted credential for %s/%s\n", args[0], args[1])
			return nil
		},
	}
}
