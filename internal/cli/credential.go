package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/storysync/internal/credentials"
)

// EnvPassphrase overrides every other passphrase source
const EnvPassphrase = "STORYSYNC_PASSPHRASE"

// passphrase reads the credential passphrase with priority:
// 1. Environment variable STORYSYNC_PASSPHRASE
// 2. File given by --passphrase-file
// 3. Interactive prompt
func (a *App) passphrase() (string, error) {
	if env := os.Getenv(EnvPassphrase); env != "" {
		return env, nil
	}

	if a.opts.PassphraseFile != "" {
		content, err := os.ReadFile(a.opts.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		// Убираем trailing newline/whitespace
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", errors.New("passphrase file is empty")
		}
		return passphrase, nil
	}

	passphrase, err := a.io.ReadPassword("Passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	return passphrase, nil
}

func (a *App) credentials(ctx context.Context) (*credentials.Service, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	return credentials.New(svc.Backend())
}

func newCredentialCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credential",
		Aliases: []string{"cred"},
		Short:   "Manage encrypted credentials for sync transports",
	}

	var secretFile string
	setCmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Encrypt and store a secret under name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			creds, err := a.credentials(ctx)
			if err != nil {
				return err
			}

			var secret string
			if secretFile != "" {
				content, err := os.ReadFile(secretFile)
				if err != nil {
					return fmt.Errorf("failed to read secret file: %w", err)
				}
				secret = strings.TrimSpace(string(content))
			} else {
				secret, err = a.io.ReadPassword("Secret: ")
				if err != nil {
					return fmt.Errorf("failed to read secret: %w", err)
				}
			}

			passphrase, err := a.passphrase()
			if err != nil {
				return err
			}
			if err := creds.Put(ctx, args[0], secret, passphrase); err != nil {
				return err
			}
			a.io.Printf("Stored credential %s\n", args[0])
			return nil
		},
	}
	setCmd.Flags().StringVar(&secretFile, "secret-file", "", "read the secret from a file instead of prompting")

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Decrypt and print a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			creds, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			passphrase, err := a.passphrase()
			if err != nil {
				return err
			}
			cred, err := creds.Get(ctx, args[0], passphrase)
			if err != nil {
				return err
			}
			a.io.Println(cred.Secret)
			a.io.Errorf("Stored %s\n", cred.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.credentials(cmd.Context())
			if err != nil {
				return err
			}
			if err := creds.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.io.Printf("Deleted credential %s\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List credential names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.credentials(cmd.Context())
			if err != nil {
				return err
			}
			names, err := creds.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				a.io.Println("No credentials stored.")
				return nil
			}
			for _, name := range names {
				a.io.Println(name)
			}
			return nil
		},
	}

	cmd.AddCommand(setCmd, getCmd, deleteCmd, listCmd)
	return cmd
}
