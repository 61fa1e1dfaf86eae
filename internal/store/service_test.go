package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/storage/boltstore"
	"github.com/iudanet/storysync/internal/storage/filestore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestService создает сервис поверх BoltDB во временной директории
func setupTestService(t *testing.T, opts Options) *Service {
	t.Helper()

	b, err := boltstore.New(context.Background(), filepath.Join(t.TempDir(), "stories.bolt"))
	require.NoError(t, err)

	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	svc := New(b, opts)
	require.NoError(t, svc.Initialize(context.Background()))
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// recorder собирает события для проверок
type recorder struct {
	events []Event
	mu     sync.Mutex
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventName, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestService_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	doc := models.Document{"title": "Cave", "count": 3, "nested": map[string]any{"n": 1}}
	meta, err := svc.Save(ctx, "cave", doc, nil)
	require.NoError(t, err)
	assert.Equal(t, "Cave", meta.Title)

	want := models.Document{"title": "Cave", "count": float64(3), "nested": map[string]any{"n": float64(1)}}

	// Из кэша
	cached, err := svc.Load(ctx, "cave")
	require.NoError(t, err)
	assert.Equal(t, want, cached)

	// Из бэкенда: типы совпадают с кэшем
	svc.ClearCache()
	fresh, err := svc.Load(ctx, "cave")
	require.NoError(t, err)
	assert.Equal(t, want, fresh)

	st := svc.Snapshot()
	assert.Equal(t, int64(1), st.Saves)
	assert.Equal(t, int64(2), st.Loads)
	assert.Equal(t, int64(1), st.CacheHits)
	assert.Equal(t, int64(1), st.CacheMisses)
	assert.InDelta(t, 0.5, st.HitRate, 1e-9)
	assert.Equal(t, 1, st.CacheSize)
	assert.Equal(t, DefaultCacheSize, st.MaxCacheSize)
}

func TestService_ReturnedDocumentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	doc := models.Document{"title": "A", "list": []any{"x"}}
	_, err := svc.Save(ctx, "iso", doc, nil)
	require.NoError(t, err)

	// Изменение исходного документа после сохранения не влияет на кэш
	doc["title"] = "changed"

	loaded, err := svc.Load(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "A", loaded.Title())

	loaded["list"].([]any)[0] = "y"
	again, err := svc.Load(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "x", again["list"].([]any)[0])
}

func TestService_CacheEviction(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{CacheSize: 2})

	for _, k := range []string{"a", "b", "c"} {
		_, err := svc.Save(ctx, k, models.Document{"title": k}, nil)
		require.NoError(t, err)
	}

	_, ok := svc.Cached("a")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = svc.Cached("b")
	assert.True(t, ok)
	_, ok = svc.Cached("c")
	assert.True(t, ok)
	assert.Equal(t, 2, svc.Snapshot().CacheSize)

	// Вытесненный документ загружается из бэкенда
	doc, err := svc.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Title())
	assert.Equal(t, int64(1), svc.Snapshot().CacheMisses)
}

func TestService_CacheDisabled(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{CacheSize: -1})

	_, err := svc.Save(ctx, "a", models.Document{"title": "a"}, nil)
	require.NoError(t, err)

	_, ok := svc.Cached("a")
	assert.False(t, ok)

	_, err = svc.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), svc.Snapshot().CacheMisses)
}

func TestService_Events(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	rec := &recorder{}
	svc.OnAny(rec.listen)

	saved := &recorder{}
	unsubscribe := svc.On(EventDocumentSaved, saved.listen)

	_, err := svc.Save(ctx, "story", models.Document{"title": "v1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, saved.last().Payload["created"])
	assert.Equal(t, "story", saved.last().Payload["key"])

	_, err = svc.Save(ctx, "story", models.Document{"title": "v2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, saved.last().Payload["created"])

	_, err = svc.Load(ctx, "story")
	require.NoError(t, err)
	assert.Equal(t, true, rec.last().Payload["from_cache"])

	title := "renamed"
	_, err = svc.UpdateMetadata(ctx, "story", models.MetadataPatch{Title: &title})
	require.NoError(t, err)
	_, ok := svc.Cached("story")
	assert.False(t, ok, "metadata update invalidates the cache entry")

	_, err = svc.Load(ctx, "story")
	require.NoError(t, err)
	assert.Equal(t, false, rec.last().Payload["from_cache"])

	require.NoError(t, svc.Delete(ctx, "story"))
	require.NoError(t, svc.Clear(ctx))

	assert.Equal(t, []EventName{
		EventDocumentSaved,
		EventDocumentSaved,
		EventDocumentLoaded,
		EventMetadataUpdated,
		EventDocumentLoaded,
		EventDocumentDeleted,
		EventStorageCleared,
	}, rec.names())

	unsubscribe()
	_, err = svc.Save(ctx, "other", models.Document{}, nil)
	require.NoError(t, err)
	assert.Len(t, saved.names(), 2)
}

func TestService_ListenerPanicIsRecovered(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	svc.On(EventDocumentSaved, func(Event) { panic("boom") })
	rec := &recorder{}
	svc.On(EventDocumentSaved, rec.listen)

	_, err := svc.Save(ctx, "k", models.Document{}, nil)
	require.NoError(t, err)
	assert.Len(t, rec.names(), 1)
}

func TestService_NotFoundIsNotAnError(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	rec := &recorder{}
	svc.On(EventStorageError, rec.listen)

	_, err := svc.Load(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "missing"), storage.ErrNotFound)

	assert.Empty(t, rec.names())
	assert.Zero(t, svc.Snapshot().Errors)
}

func TestService_InvalidKey(t *testing.T) {
	svc := setupTestService(t, Options{})

	_, err := svc.Save(context.Background(), "bad key", models.Document{}, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
	assert.Equal(t, int64(1), svc.Snapshot().Errors)

	_, err = svc.Save(context.Background(), "nil", nil, nil)
	assert.ErrorIs(t, err, storage.ErrSerialization)
}

func TestService_BackendErrorEmitsEvent(t *testing.T) {
	backend := &storage.BackendMock{
		SaveFunc: func(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
			return nil, storage.BackendError("save", key, errors.New("disk full"))
		},
		CloseFunc: func() error { return nil },
	}
	svc := New(backend, Options{Logger: discardLogger()})

	rec := &recorder{}
	svc.On(EventStorageError, rec.listen)

	_, err := svc.Save(context.Background(), "k", models.Document{"title": "x"}, nil)
	assert.ErrorIs(t, err, storage.ErrBackend)

	require.Len(t, rec.names(), 1)
	payload := rec.last().Payload
	assert.Equal(t, "save", payload["operation"])
	assert.Equal(t, "k", payload["key"])
	assert.Contains(t, payload["error"], "disk full")

	_, ok := svc.Cached("k")
	assert.False(t, ok, "failed save must not be cached")
	assert.Equal(t, int64(1), svc.Snapshot().Errors)
	assert.Len(t, backend.SaveCalls(), 1)
}

func TestService_OperationTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	backend := &storage.BackendMock{
		LoadFunc: func(ctx context.Context, key string) (models.Document, error) {
			// Бэкенд игнорирует контекст
			<-release
			return models.Document{}, nil
		},
	}
	svc := New(backend, Options{Logger: discardLogger(), OperationTimeout: 20 * time.Millisecond})

	_, err := svc.Load(context.Background(), "slow")
	assert.ErrorIs(t, err, storage.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, storage.IsRetryable(err))
}

// memBackend хранит один документ в памяти для тестов с BackendMock
type memBackend struct {
	doc models.Document
	mu  sync.Mutex
}

func (b *memBackend) load(ctx context.Context, key string) (models.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		return nil, storage.NotFound("load", key)
	}
	return b.doc.Clone(), nil
}

func (b *memBackend) save(key string, doc models.Document) *models.Metadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc = doc.Clone()
	now := time.Now()
	return &models.Metadata{ID: key, CreatedAt: now, UpdatedAt: now}
}

func TestService_LoadDoesNotCacheReadOverlappingSave(t *testing.T) {
	ctx := context.Background()
	mem := &memBackend{doc: models.Document{"title": "old"}}

	readDone := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	backend := &storage.BackendMock{
		LoadFunc: func(ctx context.Context, key string) (models.Document, error) {
			doc, err := mem.load(ctx, key)
			first := false
			once.Do(func() { first = true })
			if first {
				// Первое чтение задерживается до завершения сохранения
				close(readDone)
				<-release
			}
			return doc, err
		},
		SaveFunc: func(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
			return mem.save(key, doc), nil
		},
	}
	svc := New(backend, Options{Logger: discardLogger()})

	loaded := make(chan models.Document, 1)
	go func() {
		doc, err := svc.Load(ctx, "k")
		assert.NoError(t, err)
		loaded <- doc
	}()

	<-readDone
	_, err := svc.Save(ctx, "k", models.Document{"title": "new"}, nil)
	require.NoError(t, err)
	close(release)
	assert.Equal(t, "old", (<-loaded).Title())

	cached, ok := svc.Cached("k")
	require.True(t, ok)
	assert.Equal(t, "new", cached.Title())

	doc, err := svc.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", doc.Title())
}

func TestService_LoadDoesNotCacheReadOverlappingInvalidate(t *testing.T) {
	ctx := context.Background()
	mem := &memBackend{doc: models.Document{"title": "old"}}

	readDone := make(chan struct{})
	release := make(chan struct{})
	backend := &storage.BackendMock{
		LoadFunc: func(ctx context.Context, key string) (models.Document, error) {
			doc, err := mem.load(ctx, key)
			close(readDone)
			<-release
			return doc, err
		},
	}
	svc := New(backend, Options{Logger: discardLogger()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Load(ctx, "k")
		assert.NoError(t, err)
	}()

	<-readDone
	// Другой процесс изменил документ, сервис узнал об этом через watcher
	mem.save("k", models.Document{"title": "external"})
	svc.InvalidateCache("k")
	close(release)
	<-done

	_, ok := svc.Cached("k")
	assert.False(t, ok)
}

func TestService_SaveTimeoutDropsCachedVersion(t *testing.T) {
	ctx := context.Background()
	mem := &memBackend{}

	release := make(chan struct{})
	committed := make(chan struct{})
	var slow atomic.Bool

	backend := &storage.BackendMock{
		LoadFunc: mem.load,
		SaveFunc: func(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
			if !slow.Load() {
				return mem.save(key, doc), nil
			}
			// Бэкенд игнорирует контекст и фиксирует запись после таймаута
			<-release
			saved := mem.save(key, doc)
			close(committed)
			return saved, nil
		},
	}
	svc := New(backend, Options{Logger: discardLogger(), OperationTimeout: 20 * time.Millisecond})

	_, err := svc.Save(ctx, "k", models.Document{"title": "v1"}, nil)
	require.NoError(t, err)
	_, ok := svc.Cached("k")
	require.True(t, ok)

	slow.Store(true)
	_, err = svc.Save(ctx, "k", models.Document{"title": "v2"}, nil)
	assert.ErrorIs(t, err, storage.ErrTimeout)

	_, ok = svc.Cached("k")
	assert.False(t, ok, "cache must not keep the version the backend may have replaced")

	close(release)
	<-committed

	doc, err := svc.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Title())
}

func TestService_StatsRefreshesBackendBytes(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	meta, err := svc.Save(ctx, "sized", models.Document{"title": "sized"}, nil)
	require.NoError(t, err)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta.Size, st.BackendBytes)

	svc.ResetStats()
	st = svc.Snapshot()
	assert.Zero(t, st.Saves)
	assert.Equal(t, meta.Size, st.BackendBytes)
}

func TestService_ExportImport(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	_, err := svc.Save(ctx, "exp", models.Document{"title": "Exp"}, nil)
	require.NoError(t, err)

	data, err := svc.Export(ctx, "exp")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "exp"))

	key, err := svc.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "exp", key)

	doc, err := svc.Load(ctx, "exp")
	require.NoError(t, err)
	assert.Equal(t, "Exp", doc.Title())

	exists, err := svc.Exists(ctx, "exp")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_Batch(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})

	res := svc.BatchSave(ctx, map[string]models.Document{
		"b":       {"title": "B"},
		"a":       {"title": "A"},
		"bad key": {"title": "X"},
	})
	assert.False(t, res.OK())
	assert.Equal(t, []string{"a", "b"}, res.Succeeded)
	assert.ErrorIs(t, res.Failed["bad key"], storage.ErrInvalidKey)

	docs, res := svc.BatchLoad(ctx, []string{"a", "missing", "b", "a"})
	assert.Equal(t, []string{"a", "b"}, res.Succeeded)
	assert.ErrorIs(t, res.Failed["missing"], storage.ErrNotFound)
	assert.Equal(t, "A", docs["a"].Title())
	assert.Len(t, docs, 2)

	res = svc.BatchDelete(ctx, []string{"a", "b"})
	assert.True(t, res.OK())

	list, err := svc.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_WatchExternalChanges_Unsupported(t *testing.T) {
	svc := setupTestService(t, Options{})

	_, err := svc.WatchExternalChanges(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestService_WatchExternalChanges(t *testing.T) {
	ctx := context.Background()

	fs, err := filestore.New(t.TempDir(), filestore.WithWatchDebounce(10*time.Millisecond))
	require.NoError(t, err)
	svc := New(fs, Options{Logger: discardLogger()})
	require.NoError(t, svc.Initialize(ctx))
	t.Cleanup(func() { _ = svc.Close() })

	_, err = svc.Save(ctx, "shared", models.Document{"title": "mine"}, nil)
	require.NoError(t, err)
	_, ok := svc.Cached("shared")
	require.True(t, ok)

	changed := make(chan Event, 8)
	svc.On(EventDocumentChangedExternally, func(ev Event) { changed <- ev })

	watchCtx, cancel := context.WithCancel(ctx)
	done, err := svc.WatchExternalChanges(watchCtx)
	require.NoError(t, err)

	// Другой процесс переписывает файл
	path := filepath.Join(fs.Root(), "documents", "shared.json")
	external := `{"metadata":{"id":"shared","title":"theirs","tags":[],"size":18},"document":{"title":"theirs"}}`
	require.NoError(t, os.WriteFile(path, []byte(external), 0o600))

	select {
	case ev := <-changed:
		assert.Equal(t, "shared", ev.Payload["key"])
	case <-time.After(5 * time.Second):
		t.Fatal("no external change event")
	}

	_, ok = svc.Cached("shared")
	assert.False(t, ok, "external change invalidates the cache")

	doc, err := svc.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "theirs", doc.Title())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestCollector(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, Options{})
	c := NewCollector(svc)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	_, err := svc.Save(ctx, "m1", models.Document{}, nil)
	require.NoError(t, err)
	_, err = svc.Save(ctx, "m2", models.Document{}, nil)
	require.NoError(t, err)
	_, err = svc.Load(ctx, "m1")
	require.NoError(t, err)

	expected := `
# HELP storysync_storage_cache_hits_total Total loads served from the cache.
# TYPE storysync_storage_cache_hits_total counter
storysync_storage_cache_hits_total 1
# HELP storysync_storage_saves_total Total successful document saves.
# TYPE storysync_storage_saves_total counter
storysync_storage_saves_total 2
# HELP storysync_storage_cache_entries Documents currently cached.
# TYPE storysync_storage_cache_entries gauge
storysync_storage_cache_entries 2
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"storysync_storage_cache_hits_total",
		"storysync_storage_saves_total",
		"storysync_storage_cache_entries",
	)
	assert.NoError(t, err)

	// Длительности вызовов бэкенда учитываются по операциям
	count, err := testutil.GatherAndCount(reg, "storysync_storage_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only save went to the backend after registration")
}
