// Package store is the caching storage service in front of a storage backend.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/validation"
)

const (
	// DefaultCacheSize is the LRU capacity when Options.CacheSize is zero
	DefaultCacheSize = 50

	// DefaultOperationTimeout bounds each backend call when Options.OperationTimeout is zero
	DefaultOperationTimeout = 30 * time.Second
)

// Options configures a Service
type Options struct {
	Logger *slog.Logger
	Clock  func() time.Time

	// CacheSize is the LRU capacity. Negative disables caching.
	CacheSize int

	// OperationTimeout bounds each backend call. Negative disables the bound.
	OperationTimeout time.Duration
}

// Service wraps a backend with an LRU cache, events and statistics
type Service struct {
	backend  storage.Backend
	logger   *slog.Logger
	clock    func() time.Time
	observer func(op string, d time.Duration)
	cache    *docCache

	listeners    map[EventName][]listenerEntry
	anyListeners []listenerEntry

	counters counters
	timeout  time.Duration

	// writeSeq растет при каждой записи или инвалидации кэша; загрузка
	// кладет результат в кэш, только если за время чтения записей не было
	writeSeq uint64

	nextListenerID uint64
	listenersMu    sync.RWMutex
	mu             sync.Mutex
}

// New creates a storage service over backend. The backend must be initialized
// separately (see Initialize).
func New(backend storage.Backend, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	size := opts.CacheSize
	switch {
	case size == 0:
		size = DefaultCacheSize
	case size < 0:
		size = 0
	}

	timeout := opts.OperationTimeout
	if timeout == 0 {
		timeout = DefaultOperationTimeout
	}

	return &Service{
		backend:   backend,
		logger:    opts.Logger,
		clock:     opts.Clock,
		cache:     newDocCache(size),
		timeout:   timeout,
		listeners: make(map[EventName][]listenerEntry),
	}
}

// Backend returns the wrapped backend
func (s *Service) Backend() storage.Backend {
	return s.backend
}

// Initialize initializes the backend
func (s *Service) Initialize(ctx context.Context) error {
	return s.call(ctx, "initialize", "", func(ctx context.Context) error {
		return s.backend.Initialize(ctx)
	})
}

// Close closes the backend and drops the cache
func (s *Service) Close() error {
	s.mu.Lock()
	s.cache.Clear()
	s.writeSeq++
	s.mu.Unlock()
	return s.backend.Close()
}

// Save normalizes doc, writes it through to the backend and caches it.
// meta may be nil.
func (s *Service) Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
	if err := validation.ValidateInternalKey(key); err != nil {
		return nil, s.fail("save", key, storage.InvalidKey("save", key, err))
	}
	if doc == nil {
		return nil, s.fail("save", key, storage.SerializationError("save", key, errors.New("document cannot be nil")))
	}

	normalized, err := doc.Normalize()
	if err != nil {
		return nil, s.fail("save", key, storage.SerializationError("save", key, err))
	}

	s.mu.Lock()
	seq := s.writeSeq
	s.mu.Unlock()

	var saved *models.Metadata
	err = s.call(ctx, "save", key, func(ctx context.Context) error {
		var err error
		saved, err = s.backend.Save(ctx, key, normalized, meta)
		return err
	})
	if err != nil {
		// Бэкенд мог зафиксировать запись после таймаута
		s.mu.Lock()
		s.cache.Remove(key)
		s.writeSeq++
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	if s.writeSeq == seq {
		s.cache.Put(key, normalized)
	} else {
		// Параллельная запись: порядок фиксации в бэкенде неизвестен
		s.cache.Remove(key)
	}
	s.writeSeq++
	s.counters.saves++
	s.mu.Unlock()

	// Бэкенды выставляют created_at == updated_at только при создании
	s.emit(EventDocumentSaved, map[string]any{
		"key":     key,
		"created": saved.CreatedAt.Equal(saved.UpdatedAt),
		"size":    saved.Size,
	})

	return saved.Clone(), nil
}

// Load returns the document from cache or backend
func (s *Service) Load(ctx context.Context, key string) (models.Document, error) {
	s.mu.Lock()
	if doc, ok := s.cache.Get(key); ok {
		s.counters.hits++
		s.counters.loads++
		s.mu.Unlock()

		s.emit(EventDocumentLoaded, map[string]any{"key": key, "from_cache": true})
		return doc.Clone(), nil
	}
	s.counters.misses++
	s.mu.Unlock()

	return s.loadBackend(ctx, key)
}

// LoadFresh bypasses the cache for reading and refreshes it with the result
func (s *Service) LoadFresh(ctx context.Context, key string) (models.Document, error) {
	return s.loadBackend(ctx, key)
}

// loadBackend reads key from the backend. The result is cached only when no
// write or invalidation happened while the read was in flight.
func (s *Service) loadBackend(ctx context.Context, key string) (models.Document, error) {
	s.mu.Lock()
	seq := s.writeSeq
	s.mu.Unlock()

	var doc models.Document
	err := s.call(ctx, "load", key, func(ctx context.Context) error {
		var err error
		doc, err = s.backend.Load(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.writeSeq == seq {
		s.cache.Put(key, doc)
	}
	s.counters.loads++
	s.mu.Unlock()

	s.emit(EventDocumentLoaded, map[string]any{"key": key, "from_cache": false})
	return doc.Clone(), nil
}

// Cached returns the cached document without touching the backend or recency
func (s *Service) Cached(key string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.cache.Peek(key)
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// InvalidateCache drops key from the cache
func (s *Service) InvalidateCache(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
	s.writeSeq++
}

// ClearCache drops every cached document
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
	s.writeSeq++
}

// Delete removes the document from backend and cache
func (s *Service) Delete(ctx context.Context, key string) error {
	err := s.call(ctx, "delete", key, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	})

	s.mu.Lock()
	s.cache.Remove(key)
	s.writeSeq++
	if err == nil {
		s.counters.deletes++
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.emit(EventDocumentDeleted, map[string]any{"key": key})
	return nil
}

// List returns document metadata from the backend
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Metadata, error) {
	var list []*models.Metadata
	err := s.call(ctx, "list", "", func(ctx context.Context) error {
		var err error
		list, err = s.backend.List(ctx, filter)
		return err
	})
	return list, err
}

// Exists reports whether key is stored. A cached key exists.
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, cached := s.cache.Peek(key)
	s.mu.Unlock()
	if cached {
		return true, nil
	}

	var exists bool
	err := s.call(ctx, "exists", key, func(ctx context.Context) error {
		var err error
		exists, err = s.backend.Exists(ctx, key)
		return err
	})
	return exists, err
}

// GetMetadata returns metadata for key
func (s *Service) GetMetadata(ctx context.Context, key string) (*models.Metadata, error) {
	var meta *models.Metadata
	err := s.call(ctx, "get_metadata", key, func(ctx context.Context) error {
		var err error
		meta, err = s.backend.GetMetadata(ctx, key)
		return err
	})
	return meta, err
}

// UpdateMetadata patches metadata and invalidates the cached document
func (s *Service) UpdateMetadata(ctx context.Context, key string, patch models.MetadataPatch) (*models.Metadata, error) {
	var meta *models.Metadata
	err := s.call(ctx, "update_metadata", key, func(ctx context.Context) error {
		var err error
		meta, err = s.backend.UpdateMetadata(ctx, key, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateCache(key)
	s.emit(EventMetadataUpdated, map[string]any{"key": key})
	return meta, nil
}

// Export encodes key as an envelope
func (s *Service) Export(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.call(ctx, "export", key, func(ctx context.Context) error {
		var err error
		data, err = s.backend.Export(ctx, key)
		return err
	})
	return data, err
}

// Import stores an envelope and returns its key
func (s *Service) Import(ctx context.Context, data []byte) (string, error) {
	var key string
	err := s.call(ctx, "import", "", func(ctx context.Context) error {
		var err error
		key, err = s.backend.Import(ctx, data)
		return err
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache.Remove(key)
	s.writeSeq++
	s.counters.saves++
	s.mu.Unlock()

	s.emit(EventDocumentSaved, map[string]any{"key": key, "imported": true})
	return key, nil
}

// StorageUsage returns the backend usage in bytes
func (s *Service) StorageUsage(ctx context.Context) (int64, error) {
	var usage int64
	err := s.call(ctx, "storage_usage", "", func(ctx context.Context) error {
		var err error
		usage, err = s.backend.StorageUsage(ctx)
		return err
	})
	if err == nil {
		s.mu.Lock()
		s.counters.backendBytes = usage
		s.mu.Unlock()
	}
	return usage, err
}

// Clear removes everything from the backend and the cache
func (s *Service) Clear(ctx context.Context) error {
	err := s.call(ctx, "clear", "", func(ctx context.Context) error {
		return s.backend.Clear(ctx)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache.Clear()
	s.writeSeq++
	s.counters.backendBytes = 0
	s.mu.Unlock()

	s.emit(EventStorageCleared, map[string]any{})
	return nil
}

// setObserver installs a duration observer for backend calls
func (s *Service) setObserver(fn func(op string, d time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// call runs fn against the backend bounded by the operation timeout.
// Backends that ignore ctx are abandoned when the deadline passes.
func (s *Service) call(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	start := time.Now()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		select {
		case err = <-done:
		default:
			err = ctx.Err()
		}
	}

	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		observer(op, time.Since(start))
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && storage.KindOf(err) != storage.KindTimeout {
		err = storage.NewError(storage.KindTimeout, op, key, err)
	}
	return s.fail(op, key, err)
}

// fail records err and emits storage_error. Not-found is a regular answer
// and is not counted.
func (s *Service) fail(op, key string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	s.counters.errors++
	s.mu.Unlock()

	s.logger.Warn("storage operation failed", "operation", op, "key", key, "error", err)
	s.emit(EventStorageError, map[string]any{
		"operation": op,
		"key":       key,
		"error":     err.Error(),
	})
	return err
}
