// Package cli implements the storysync command line.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iudanet/storysync/internal/cli/iocli"
)

// BuildInfo is version information set via ldflags during build
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath     string
	DSN            string
	PassphraseFile string
	Version        bool
}

// NewRootCommand creates the root command. Commands share one lazily opened
// storage service owned by a; call a.Close when the command returns.
func NewRootCommand(info BuildInfo, a *App) *cobra.Command {
	opts := a.opts
	a.info = info

	cmd := &cobra.Command{
		Use:   "storysync",
		Short: "storysync - story persistence and multi-device sync",
		Long: `Persist interactive fiction stories in SQLite, PostgreSQL, bolt or plain
JSON files, autosave drafts and exchange changes between devices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				return nil
			}
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				printVersion(a.io, info)
				return nil
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "storage DSN, overrides config and STORYSYNC_DSN")
	cmd.PersistentFlags().StringVar(&opts.PassphraseFile, "passphrase-file", "", "file containing the credential passphrase")
	cmd.Flags().BoolVar(&opts.Version, "version", false, "show version information")

	cmd.AddCommand(
		newInitCommand(a),
		newSaveCommand(a),
		newLoadCommand(a),
		newListCommand(a),
		newDeleteCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newUsageCommand(a),
		newClearCommand(a),
		newStatsCommand(a),
		newSyncCommand(a),
		newQueueCommand(a),
		newCredentialCommand(a),
		newPrefCommand(a),
		newWatchCommand(a),
	)

	return cmd
}

// Run executes the command line with args and releases resources
func Run(ctx context.Context, info BuildInfo, term iocli.IO, args []string) error {
	a := NewApp(term)
	cmd := NewRootCommand(info, a)
	cmd.SetArgs(args)
	cmd.SetOut(term)
	cmd.SetErr(errWriter{term})

	err := cmd.ExecuteContext(ctx)
	if closeErr := a.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

func printVersion(term iocli.IO, info BuildInfo) {
	term.Printf("storysync\n")
	term.Printf("Version:    %s\n", info.Version)
	term.Printf("Build Date: %s\n", info.BuildDate)
	term.Printf("Git Commit: %s\n", info.GitCommit)
}

// errWriter направляет вывод cobra об ошибках в поток ошибок IO
type errWriter struct {
	term iocli.IO
}

func (w errWriter) Write(p []byte) (int, error) {
	w.term.Errorf("%s", p)
	return len(p), nil
}
