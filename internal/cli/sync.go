package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/syncstate"
	"github.com/iudanet/storysync/pkg/api"
)

func newSyncCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and exchange device sync state",
	}

	cmd.AddCommand(
		newSyncStatusCommand(a),
		newSyncResetCommand(a),
		newSyncPendingCommand(a),
		newSyncStageCommand(a),
		newSyncApplyCommand(a),
	)
	return cmd
}

func newSyncStatusCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show device id, version vector, pending operations and stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.SyncState(cmd.Context())
			if err != nil {
				return err
			}

			st := m.State()
			a.io.Printf("Device ID:          %s\n", st.DeviceID)
			if st.LastSyncTime.IsZero() {
				a.io.Printf("Last sync:          never\n")
			} else {
				a.io.Printf("Last sync:          %s\n", st.LastSyncTime.Format(time.RFC3339))
			}
			a.io.Printf("Pending operations: %d\n", len(st.PendingOperations))
			a.io.Printf("Total syncs:        %d\n", st.Stats.TotalSyncs)
			a.io.Printf("Conflicts resolved: %d\n", st.Stats.ConflictsResolved)
			a.io.Printf("Bytes sent/recv:    %d/%d\n", st.Stats.BytesSent, st.Stats.BytesReceived)

			devices := st.VersionVector.Devices()
			if len(devices) > 0 {
				a.io.Println("Version vector:")
				for _, d := range devices {
					a.io.Printf("  %s: %d\n", d, st.VersionVector.Get(d))
				}
			}
			if st.LastError != nil {
				a.io.Printf("Last error:         %s (%s)\n", st.LastError.Message, st.LastError.Time.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newSyncResetCommand(a *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget version vector, pending operations and stats; keep the device id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset sync state without --yes")
			}
			m, err := a.SyncState(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.Reset(cmd.Context()); err != nil {
				return err
			}
			a.io.Printf("Sync state reset for device %s\n", m.DeviceID())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newSyncPendingCommand(a *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Write pending operations as a sync batch for another device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.SyncState(ctx)
			if err != nil {
				return err
			}

			var since int64
			if last := m.LastSyncTime(); !last.IsZero() {
				since = last.UnixMilli()
			}
			batch := api.NewBatch(m.DeviceID(), since, m.VersionVector(), m.PendingOperations())

			data, err := json.MarshalIndent(batch, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode batch: %w", err)
			}

			if output == "" || output == "-" {
				_, err = a.io.Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			if err := m.RecordBandwidth(ctx, int64(len(data)), 0); err != nil {
				return err
			}
			a.io.Printf("Wrote %d operation(s) to %s\n", len(batch.Operations), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newSyncStageCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Copy pending operations into the backend sync queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			queue, err := a.syncQueue(cmd)
			if err != nil {
				return err
			}
			m, err := a.SyncState(ctx)
			if err != nil {
				return err
			}
			n, err := m.StagePending(ctx, queue)
			if err != nil {
				return err
			}
			a.io.Printf("Staged %d operation(s)\n", n)
			return nil
		},
	}
}

func newSyncApplyCommand(a *App) *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "apply <batch-file|->",
		Short: "Merge a sync batch written by another device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if strategy == "" {
				strategy = a.cfg.Sync.Strategy
			}
			st, err := protocol.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			data, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			var batch api.Batch
			if err := json.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("invalid sync batch: %w", err)
			}
			ops, err := batch.ProtocolOperations()
			if err != nil {
				return fmt.Errorf("invalid sync batch: %w", err)
			}

			svc, err := a.Service(ctx)
			if err != nil {
				return err
			}
			m, err := a.SyncState(ctx)
			if err != nil {
				return err
			}
			if batch.DeviceID == m.DeviceID() {
				return fmt.Errorf("batch was written by this device (%s)", batch.DeviceID)
			}

			result, err := m.ApplyRemote(ctx, svc, ops, protocol.VersionVector(batch.VersionVector), syncstate.ApplyOptions{
				Strategy: st,
				Window:   a.cfg.Sync.ConflictWindow,
				Resolver: a.promptResolver,
			})
			if err != nil {
				return err
			}
			if err := m.RecordBandwidth(ctx, 0, int64(len(data))); err != nil {
				return err
			}

			a.io.Printf("Applied batch from %s: %d saved, %d deleted, %d conflict(s), %d skipped\n",
				batch.DeviceID, len(result.Saved), len(result.Deleted), result.Conflicts, result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "conflict strategy (last_write_wins, auto_merge, keep_both, manual)")
	return cmd
}

// promptResolver спрашивает пользователя, какую сторону конфликта оставить
func (a *App) promptResolver(c protocol.Conflict) (protocol.Resolution, error) {
	a.io.Printf("Conflict on %s (%s)\n", c.Key, c.Type)
	a.io.Printf("  local:  %s at %s\n", describe(c.Local), c.Local.Time().Format(time.RFC3339))
	a.io.Printf("  remote: %s at %s from %s\n", describe(c.Remote), c.Remote.Time().Format(time.RFC3339), c.Remote.DeviceID)

	for {
		answer, err := a.io.ReadInput("Keep [l]ocal, [r]emote or [b]oth? ")
		if err != nil {
			return protocol.Resolution{}, err
		}

		switch strings.ToLower(answer) {
		case "l", "local":
			return pick(c, c.Local), nil
		case "r", "remote":
			return pick(c, c.Remote), nil
		case "b", "both":
			return protocol.Resolve(c, protocol.KeepBoth, protocol.ResolveOptions{})
		}
	}
}

func pick(c protocol.Conflict, op protocol.Operation) protocol.Resolution {
	w := op.Clone()
	res := protocol.Resolution{Winner: &w, Documents: map[string]models.Document{}}
	if w.Type == protocol.OpDelete {
		res.Deleted = []string{c.Key}
	} else if w.Data != nil {
		res.Documents[c.Key] = w.Data.Clone()
	}
	return res
}

func describe(op protocol.Operation) string {
	if title := op.Data.Title(); title != "" {
		return fmt.Sprintf("%s %q", op.Type, title)
	}
	return string(op.Type)
}

func newQueueCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the backend sync queue",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List staged records in enqueue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := a.syncQueue(cmd)
			if err != nil {
				return err
			}
			records, err := queue.PendingSync(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				a.io.Println("Sync queue is empty.")
				return nil
			}
			for _, rec := range records {
				a.io.Printf("%s  %s  %s  %d bytes\n", rec.EnqueuedAt.Format(time.RFC3339), rec.ID, rec.Key, len(rec.Payload))
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 = all)")

	ackCmd := &cobra.Command{
		Use:   "ack <id>...",
		Short: "Acknowledge delivered records and drop their pending operations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			queue, err := a.syncQueue(cmd)
			if err != nil {
				return err
			}
			m, err := a.SyncState(ctx)
			if err != nil {
				return err
			}
			if err := m.Acknowledge(ctx, queue, args...); err != nil {
				return err
			}
			a.io.Printf("Acknowledged %d record(s)\n", len(args))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every staged record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := a.syncQueue(cmd)
			if err != nil {
				return err
			}
			if err := queue.ClearSyncQueue(cmd.Context()); err != nil {
				return err
			}
			a.io.Println("Sync queue cleared.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, ackCmd, clearCmd)
	return cmd
}

func (a *App) syncQueue(cmd *cobra.Command) (storage.SyncQueueStore, error) {
	svc, err := a.Service(cmd.Context())
	if err != nil {
		return nil, err
	}
	return storage.SyncQueue(svc.Backend())
}
