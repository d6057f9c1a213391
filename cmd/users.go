package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/imageeditor/internal/credentials"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newUsersCmd() *cobra.Command {
	var credentialsFile string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the YAML credential file",
		Long: `Inspect and edit the credential file the web interface logs users in against.

The file layout is compatible with streamlit-authenticator.`,
	}

	cmd.PersistentFlags().StringVar(&credentialsFile, "credentials", "credentials.yaml", "Path to the YAML credential file (env CREDENTIALS_FILE)")

	resolve := func(cmd *cobra.Command) string {
		if !cmd.Flags().Changed("credentials") {
			if v := os.Getenv("CREDENTIALS_FILE"); v != "" {
				return v
			}
		}
		return credentialsFile
	}

	cmd.AddCommand(newUsersHashCmd())
	cmd.AddCommand(newUsersAddCmd(resolve))
	cmd.AddCommand(newUsersListCmd(resolve))

	return cmd
}

// readPassword takes the password from the flag value, an echo-free
// terminal prompt, or the first line of piped stdin.
func readPassword(cmd *cobra.Command, password string) (string, error) {
	if password != "" {
		return password, nil
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(pw)
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}

func newUsersHashCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the bcrypt hash of a password",
		Example: `  # Hash a password read from stdin
  echo 'hunter2' | imageeditor users hash`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			hash, err := credentials.Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password to hash (read from stdin when empty)")

	return cmd
}

func newUsersAddCmd(resolve func(*cobra.Command) string) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Add or replace a user in the credential file",
		Args:  cobra.ExactArgs(1),
		Example: `  imageeditor users add jsmith --name "John Smith" --email jsmith@example.com < password.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentials.Load(resolve(cmd))
			if err != nil {
				return err
			}
			password, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			if err := store.AddUser(args[0], name, email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved user %s\n", strings.ToLower(args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUsersListCmd(resolve func(*cobra.Command) string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users in the credential file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentials.Load(resolve(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, u := range store.Users() {
				fmt.Fprintf(out, "%-20s %-30s %s\n", u.Username, u.Email, u.Name)
			}
			return nil
		},
	}
}
