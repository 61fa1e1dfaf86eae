package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/iudanet/storysync/internal/autosave"
	"github.com/iudanet/storysync/internal/metrics"
	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/store"
	"github.com/iudanet/storysync/internal/validation"
)

// WatchOptions configures the watch command
type WatchOptions struct {
	DraftsDir   string
	MetricsAddr string
}

func newWatchCommand(a *App) *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Autosave drafts and follow external storage changes until interrupted",
		Long: `Run the autosave loop until SIGINT or SIGTERM.

With --drafts, every <key>.json written into the directory is marked dirty
and saved after the configured debounce. Backends that support watching
report documents changed by other processes. On exit every pending draft is
flushed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parentCtx := cmd.Context()
			if parentCtx == nil {
				parentCtx = context.Background()
			}
			ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.watch(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DraftsDir, "drafts", "", "directory of <key>.json drafts to autosave")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func (a *App) watch(ctx context.Context, opts *WatchOptions) error {
	svc, err := a.Service(ctx)
	if err != nil {
		return err
	}
	// Состояние синхронизации загружаем до запуска горутин
	if _, err := a.SyncState(ctx); err != nil {
		return err
	}

	strategy, err := protocol.ParseStrategy(a.cfg.Sync.Strategy)
	if err != nil {
		return err
	}

	manager := autosave.New(recordingSaver{Service: svc, app: a}, autosave.Options{
		Logger:        a.logger,
		Debounce:      a.cfg.Autosave.Debounce,
		MaxInterval:   a.cfg.Autosave.MaxInterval,
		MaxRetries:    a.cfg.Autosave.MaxRetries,
		ConflictCheck: a.cfg.Autosave.ConflictCheck,
		OnConflict:    conflictPolicy(strategy, a.logger, time.Now),
		OnError: func(key string, err error) {
			a.io.Errorf("autosave of %s failed: %v\n", key, err)
		},
	})

	unsubscribe := svc.On(store.EventDocumentChangedExternally, func(ev store.Event) {
		a.io.Printf("changed externally: %v (%v)\n", ev.Payload["key"], ev.Payload["op"])
	})
	defer unsubscribe()

	watchDone, err := svc.WatchExternalChanges(ctx)
	switch {
	case errors.Is(err, storage.ErrUnsupported):
		a.logger.Info("backend does not report external changes", "scheme", storage.SchemeOf(a.cfg.Storage.DSN))
	case err != nil:
		return err
	}

	if opts.MetricsAddr != "" {
		srv, err := metrics.NewServer(opts.MetricsAddr, svc, a.info.Version, a.logger)
		if err != nil {
			return err
		}
		addr, err := srv.Start()
		if err != nil {
			return err
		}
		a.io.Errorf("Metrics on http://%s/metrics\n", addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("failed to stop metrics server", "error", err)
			}
		}()
	}

	var draftsDone <-chan struct{}
	if opts.DraftsDir != "" {
		draftsDone, err = watchDrafts(ctx, opts.DraftsDir, manager, svc, a.logger)
		if err != nil {
			return err
		}
	}

	a.io.Errorf("Watching %s storage, press Ctrl+C to stop\n", storage.SchemeOf(a.cfg.Storage.DSN))
	manager.Run(ctx, a.cfg.Autosave.Tick)

	if draftsDone != nil {
		<-draftsDone
	}
	if watchDone != nil {
		<-watchDone
	}

	// Контекст уже отменен; сохраняем остатки с отдельным таймаутом
	flushCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Storage.OperationTimeout)
	defer cancel()
	if err := manager.SaveAll(flushCtx); err != nil {
		return fmt.Errorf("failed to flush drafts: %w", err)
	}
	a.io.Errorf("Stopped\n")
	return nil
}

// recordingSaver saves through the storage service and queues each save as a
// local sync operation
type recordingSaver struct {
	*store.Service
	app *App
}

func (s recordingSaver) Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
	saved, err := s.Service.Save(ctx, key, doc, meta)
	if err != nil {
		return nil, err
	}

	typ := protocol.OpUpdate
	if saved.CreatedAt.Equal(saved.UpdatedAt) {
		typ = protocol.OpCreate
	}
	if err := s.app.record(ctx, typ, key, doc); err != nil {
		// Документ уже сохранен; потеря операции не должна повторять запись
		s.app.logger.Warn("failed to queue sync operation", "key", key, "error", err)
	}
	return saved, nil
}

// conflictPolicy maps the configured sync strategy onto autosave conflict
// resolution. Strategies that would create new keys or need a person keep
// the local copy.
func conflictPolicy(strategy protocol.Strategy, logger *slog.Logger, now func() time.Time) autosave.ConflictFunc {
	return func(c *autosave.Conflict) autosave.Resolution {
		switch strategy {
		case protocol.LastWriteWins, protocol.AutoMerge:
		default:
			logger.Warn("stored story changed while editing, keeping local copy",
				"key", c.Key, "strategy", strategy)
			return autosave.KeepLocal
		}

		pc := protocol.Conflict{
			Key:    c.Key,
			Type:   protocol.ConflictConcurrentUpdate,
			Local:  protocol.Operation{ID: "local", Type: protocol.OpUpdate, Key: c.Key, Data: c.Local, Timestamp: now().UnixMilli()},
			Remote: protocol.Operation{ID: "remote", Type: protocol.OpUpdate, Key: c.Key, Data: c.Remote, Timestamp: c.RemoteUpdatedAt.UnixMilli()},
		}
		res, err := protocol.Resolve(pc, strategy, protocol.ResolveOptions{})
		if err != nil {
			return autosave.KeepLocal
		}

		switch {
		case res.Winner == nil:
			return autosave.Merged(res.Documents[c.Key])
		case res.Winner.ID == pc.Remote.ID:
			logger.Info("stored story is newer, dropping local draft", "key", c.Key)
			return autosave.KeepRemote
		default:
			return autosave.KeepLocal
		}
	}
}

// watchDrafts marks <key>.json files written into dir dirty. Existing drafts
// of stored stories are tracked as the base version for conflict checks.
func watchDrafts(ctx context.Context, dir string, manager *autosave.Manager, svc *store.Service, logger *slog.Logger) (<-chan struct{}, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create drafts directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read drafts directory: %w", err)
	}
	for _, e := range entries {
		key, ok := draftKey(e.Name())
		if !ok {
			continue
		}
		trackStored(ctx, key, manager, svc, logger)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create drafts watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				key, ok := draftKey(filepath.Base(ev.Name))
				if !ok {
					continue
				}
				if err := markDraft(manager, key, ev.Name); err != nil {
					// Редактор мог записать файл частично, ждем следующей записи
					logger.Debug("skipping draft", "key", key, "error", err)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("drafts watcher error", "dir", dir, "error", err)
			}
		}
	}()
	return done, nil
}

// draftKey returns the story key of a draft file name
func draftKey(name string) (string, bool) {
	key, ok := strings.CutSuffix(name, ".json")
	if !ok || validation.ValidateKey(key) != nil {
		return "", false
	}
	return key, true
}

func markDraft(manager *autosave.Manager, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := models.UnmarshalDocument(data)
	if err != nil {
		return err
	}
	return manager.MarkDirty(key, doc)
}

func trackStored(ctx context.Context, key string, manager *autosave.Manager, svc *store.Service, logger *slog.Logger) {
	meta, err := svc.GetMetadata(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("failed to read stored metadata", "key", key, "error", err)
		}
		return
	}
	doc, err := svc.Load(ctx, key)
	if err != nil {
		logger.Warn("failed to load stored story", "key", key, "error", err)
		return
	}
	if err := manager.Track(key, doc, meta.UpdatedAt); err != nil {
		logger.Warn("failed to track stored story", "key", key, "error", err)
	}
}
