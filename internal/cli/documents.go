package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
)

func newInitCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the storage schema, directories or buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Service(cmd.Context())
			if err != nil {
				return err
			}
			m, err := a.SyncState(cmd.Context())
			if err != nil {
				return err
			}

			a.io.Printf("Initialized %s storage\n", storage.SchemeOf(a.cfg.Storage.DSN))
			a.io.Printf("Device ID:    %s\n", m.DeviceID())
			caps := svc.Backend().Capabilities().List()
			names := make([]string, 0, len(caps))
			for _, c := range caps {
				names = append(names, string(c))
			}
			if len(names) == 0 {
				names = append(names, "none")
			}
			a.io.Printf("Capabilities: %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}

func newSaveCommand(a *App) *cobra.Command {
	var (
		title string
		tags  []string
	)

	cmd := &cobra.Command{
		Use:   "save <key> <file|->",
		Short: "Save a JSON story document read from a file or stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := args[0]

			data, err := readSource(cmd, args[1])
			if err != nil {
				return err
			}
			doc, err := models.UnmarshalDocument(data)
			if err != nil {
				return fmt.Errorf("invalid story document: %w", err)
			}

			svc, err := a.Service(ctx)
			if err != nil {
				return err
			}

			var meta *models.Metadata
			if cmd.Flags().Changed("title") || cmd.Flags().Changed("tag") {
				meta, err = models.NewMetadata(key, doc)
				if err != nil {
					return err
				}
				models.MetadataPatch{Title: optional(cmd, "title", title), Tags: optional(cmd, "tag", tags)}.Apply(meta)
			}

			saved, err := svc.Save(ctx, key, doc, meta)
			if err != nil {
				return err
			}

			typ := protocol.OpUpdate
			if saved.CreatedAt.Equal(saved.UpdatedAt) {
				typ = protocol.OpCreate
			}
			if err := a.record(ctx, typ, key, doc); err != nil {
				return err
			}

			a.io.Printf("Saved %s (%d bytes, updated %s)\n", key, saved.Size, saved.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "override the title stored in metadata")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "override the tags stored in metadata")
	return cmd
}

// optional возвращает указатель на значение флага, если он задан явно
func optional[T any](cmd *cobra.Command, name string, v T) *T {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func newLoadCommand(a *App) *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "load <key>",
		Short: "Print a story document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Service(cmd.Context())
			if err != nil {
				return err
			}

			load := svc.Load
			if fresh {
				load = svc.LoadFresh
			}
			doc, err := load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(a, doc)
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "bypass the cache")
	return cmd
}

func newListCommand(a *App) *cobra.Command {
	var filter models.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stories, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Service(cmd.Context())
			if err != nil {
				return err
			}

			list, err := svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				a.io.Println("No stories found.")
				return nil
			}

			a.io.Printf("Found %d story(ies):\n\n", len(list))
			for i, m := range list {
				a.io.Printf("%d. %s\n", i+1, m.ID)
				if m.Title != "" {
					a.io.Printf("   Title:   %s\n", m.Title)
				}
				if len(m.Tags) > 0 {
					a.io.Printf("   Tags:    %s\n", strings.Join(m.Tags, ", "))
				}
				a.io.Printf("   Size:    %d bytes\n", m.Size)
				a.io.Printf("   Updated: %s\n", m.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&filter.Tags, "tag", nil, "only stories with at least one of these tags")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of stories (0 = all)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of stories to skip")
	return cmd
}

func newDeleteCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.Service(ctx)
			if err != nil {
				return err
			}
			if err := svc.Delete(ctx, args[0]); err != nil {
				return err
			}
			if err := a.record(ctx, protocol.OpDelete, args[0], nil); err != nil {
				return err
			}
			a.io.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newExportCommand(a *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <key>",
		Short: "Export a story as a self-describing envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Service(cmd.Context())
			if err != nil {
				return err
			}
			data, err := svc.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = a.io.Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			a.io.Printf("Exported %s to %s\n", args[0], output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newImportCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import an exported envelope; a key collision gets a fresh key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			svc, err := a.Service(ctx)
			if err != nil {
				return err
			}
			key, err := svc.Import(ctx, data)
			if err != nil {
				return err
			}

			doc, err := svc.Load(ctx, key)
			if err != nil {
				return err
			}
			if err := a.record(ctx, protocol.OpCreate, key, doc); err != nil {
				return err
			}
			a.io.Printf("Imported as %s\n", key)
			return nil
		},
	}
}

func newUsageCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show bytes used by stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Service(cmd.Context())
			if err != nil {
				return err
			}
			used, err := svc.StorageUsage(cmd.Context())
			if err != nil {
				return err
			}
			a.io.Printf("%d bytes\n", used)
			return nil
		},
	}
}

func newClearCommand(a *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document and all capability data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear storage without --yes")
			}
			svc, err := a.Service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Clear(cmd.Context()); err != nil {
				return err
			}
			a.io.Println("Storage cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm removal of all data")
	return cmd
}

func newStatsCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage service statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Service(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(a, stats)
		},
	}
}

// readSource читает файл или stdin, если source равен "-"
func readSource(cmd *cobra.Command, source string) ([]byte, error) {
	if source == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return data, nil
}

func writeJSON(a *App, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = a.io.Write(append(data, '\n'))
	return err
}
