package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/iudanet/storysync/internal/cli/iocli"
	"github.com/iudanet/storysync/internal/config"
	"github.com/iudanet/storysync/internal/logging"
	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/store"
	"github.com/iudanet/storysync/internal/syncstate"

	// Движки хранения регистрируются в init
	_ "github.com/iudanet/storysync/internal/storage/boltstore"
	_ "github.com/iudanet/storysync/internal/storage/filestore"
	_ "github.com/iudanet/storysync/internal/storage/sqlstore"
)

// App holds state shared by commands of one invocation
type App struct {
	io     iocli.IO
	opts   *RootOptions
	logger *slog.Logger
	svc    *store.Service
	sync   *syncstate.Manager

	closers []io.Closer
	info    BuildInfo
	cfg     config.Config
}

// NewApp creates an App writing to term
func NewApp(term iocli.IO) *App {
	return &App{
		io:     term,
		opts:   &RootOptions{},
		logger: logging.Discard(),
		cfg:    config.Default(),
	}
}

// setup загружает конфигурацию и создает логгер
func (a *App) setup() error {
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return err
	}
	if a.opts.DSN != "" {
		cfg.Storage.DSN = a.opts.DSN
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --dsn: %w", err)
		}
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.closers = append(a.closers, closer)
	return nil
}

// Service opens and initializes the configured backend on first use
func (a *App) Service(ctx context.Context) (*store.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	backend, err := storage.Open(a.cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	svc := store.New(backend, store.Options{
		Logger:           a.logger,
		CacheSize:        a.cfg.Storage.CacheSize,
		OperationTimeout: a.cfg.Storage.OperationTimeout,
	})
	if err := svc.Initialize(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("failed to initialize storage %s: %w", storage.SchemeOf(a.cfg.Storage.DSN), err)
	}

	a.logger.Debug("storage opened", "scheme", storage.SchemeOf(a.cfg.Storage.DSN))
	a.svc = svc
	return svc, nil
}

// SyncState loads the device sync state from the storage service
func (a *App) SyncState(ctx context.Context) (*syncstate.Manager, error) {
	if a.sync != nil {
		return a.sync, nil
	}

	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	m, err := syncstate.New(ctx, svc, a.logger)
	if err != nil {
		return nil, err
	}
	a.sync = m
	return m, nil
}

// record ставит локальное изменение в очередь синхронизации
func (a *App) record(ctx context.Context, typ protocol.OperationType, key string, doc models.Document) error {
	m, err := a.SyncState(ctx)
	if err != nil {
		return err
	}
	if _, err := m.RecordLocal(ctx, typ, key, doc, nil); err != nil {
		return fmt.Errorf("failed to queue %s of %q: %w", typ, key, err)
	}
	return nil
}

// Close releases the storage service and the log file
func (a *App) Close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
		a.svc = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
