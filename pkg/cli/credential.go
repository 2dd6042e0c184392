package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/progrev/pkg/storage"
)

const maxCredentialSize = 1 << 20 // 1MB limit for all credential inputs

// NewCredentialCommand creates the credential management command
func NewCredentialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage stored credentials",
		Long: `Manage credentials securely in the system keyring (Keychain on macOS,
Credential Manager on Windows, Secret Service on Linux). progrev stores the
permission-service API token here, plus the operator identity used as the
default author on revisions and state changes. Nothing is written to plain
text files.`,
	}

	cmd.AddCommand(newCredentialSetCommand())
	cmd.AddCommand(newCredentialListCommand())
	cmd.AddCommand(newCredentialDeleteCommand())

	return cmd
}

func newCredentialSetCommand() *cobra.Command {
	var useStdin bool

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a credential",
		Long: `Store a credential under the given key. The value is read from an
interactive prompt, or from stdin with --stdin (for automation; max 1MB).

Well-known keys:
  operator          default author identity for revisions and state changes
  permission-token  API token for the permission-check service

Examples:
  progrev credential set operator
  printf '%s' "$TOKEN" | progrev credential set permission-token --stdin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readCredentialValue(cmd, useStdin)
			if err != nil {
				return err
			}
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("credential value cannot be empty")
			}

			if err := storage.NewKeyringCredentialStore().Set(args[0], value); err != nil {
				return err
			}

			cmd.Printf("Stored credential %q in the system keyring\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&useStdin, "stdin", false, "Read the value from stdin until EOF")

	return cmd
}

func newCredentialListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credential keys",
		Long:  "List the keys of stored credentials. Values are never displayed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := storage.NewKeyringCredentialStore().List()
			if err != nil {
				return err
			}

			if len(keys) == 0 {
				cmd.Println("No credentials stored.")
				return nil
			}
			for _, key := range keys {
				cmd.Println(key)
			}
			return nil
		},
	}

	return cmd
}

func newCredentialDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a credential from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.NewKeyringCredentialStore().Delete(args[0]); err != nil {
				return err
			}
			cmd.Printf("Deleted credential %q\n", args[0])
			return nil
		},
	}

	return cmd
}

// readCredentialValue reads a credential from stdin or an interactive
// prompt. Only trailing CR/LF characters are trimmed; interior whitespace is
// preserved.
func readCredentialValue(cmd *cobra.Command, useStdin bool) (string, error) {
	if useStdin {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxCredentialSize+1))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if len(data) > maxCredentialSize {
			return "", fmt.Errorf("credential exceeds the %d byte limit", maxCredentialSize)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	cmd.Print("Value: ")
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	if len(data) > maxCredentialSize {
		return "", fmt.Errorf("credential exceeds the %d byte limit", maxCredentialSize)
	}
	return string(data), nil
}
