// Package storagetest holds the contract suite every storage engine must pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
)

// Factory returns a fresh, uninitialized backend for one subtest.
// Close is called by the suite.
type Factory func(t *testing.T) storage.Backend

// Run executes the backend contract against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		run  func(t *testing.T, newBackend Factory)
		name string
	}{
		{name: "NotInitialized", run: testNotInitialized},
		{name: "InitializeIdempotent", run: testInitializeIdempotent},
		{name: "RoundTrip", run: testRoundTrip},
		{name: "SaveDerivesMetadata", run: testSaveDerivesMetadata},
		{name: "Timestamps", run: testTimestamps},
		{name: "NotFound", run: testNotFound},
		{name: "Delete", run: testDelete},
		{name: "InvalidKey", run: testInvalidKey},
		{name: "ListOrderAndFilter", run: testList},
		{name: "UpdateMetadata", run: testUpdateMetadata},
		{name: "ExportImport", run: testExportImport},
		{name: "StorageUsage", run: testStorageUsage},
		{name: "Clear", run: testClear},
		{name: "Preferences", run: testPreferences},
		{name: "SyncQueue", run: testSyncQueue},
		{name: "Credentials", run: testCredentials},
		{name: "Watch", run: testWatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, newBackend)
		})
	}
}

// open returns an initialized backend closed at test cleanup.
func open(t *testing.T, newBackend Factory) storage.Backend {
	t.Helper()
	b := newBackend(t)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Initialize(context.Background()))
	return b
}

func story(title string, tags ...string) models.Document {
	anyTags := make([]any, 0, len(tags))
	for _, tag := range tags {
		anyTags = append(anyTags, tag)
	}
	return models.Document{
		"title": title,
		"tags":  anyTags,
		"passages": map[string]any{
			"start": map[string]any{"text": "It begins.", "links": []any{"end"}},
			"end":   map[string]any{"text": "It ends.", "weight": float64(1.5)},
		},
		"published": false,
		"cover":     nil,
	}
}

func testNotInitialized(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	t.Cleanup(func() { _ = b.Close() })

	_, err := b.Save(ctx, "k", story("x"), nil)
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	_, err = b.Load(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	assert.ErrorIs(t, b.Delete(ctx, "k"), storage.ErrNotInitialized)
	_, err = b.List(ctx, models.ListFilter{})
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	_, err = b.Exists(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	_, err = b.GetMetadata(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	_, err = b.StorageUsage(ctx)
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	assert.ErrorIs(t, b.Clear(ctx), storage.ErrNotInitialized)

	assert.NotNil(t, b.Capabilities())
}

func testInitializeIdempotent(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	_, err := b.Save(ctx, "keep", story("Keep"), nil)
	require.NoError(t, err)

	require.NoError(t, b.Initialize(ctx))

	doc, err := b.Load(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "Keep", doc.Title())
}

func testRoundTrip(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	doc := story("Round trip", "a", "b")
	_, err := b.Save(ctx, "round", doc, nil)
	require.NoError(t, err)

	loaded, err := b.Load(ctx, "round")
	require.NoError(t, err)

	want, err := doc.Normalize()
	require.NoError(t, err)
	assert.True(t, want.Equal(loaded), "loaded %v", loaded)

	// Изменение загруженного документа не должно менять хранилище
	loaded["title"] = "mutated"
	again, err := b.Load(ctx, "round")
	require.NoError(t, err)
	assert.Equal(t, "Round trip", again.Title())

	exists, err := b.Exists(ctx, "round")
	require.NoError(t, err)
	assert.True(t, exists)
}

func testSaveDerivesMetadata(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	doc := story("Derived", "horror", "short")
	meta, err := b.Save(ctx, "derived", doc, nil)
	require.NoError(t, err)

	size, err := doc.Size()
	require.NoError(t, err)

	assert.Equal(t, "derived", meta.ID)
	assert.Equal(t, "Derived", meta.Title)
	assert.Equal(t, []string{"horror", "short"}, meta.Tags)
	assert.Equal(t, size, meta.Size)
	assert.False(t, meta.CreatedAt.IsZero())
	assert.True(t, meta.CreatedAt.Equal(meta.UpdatedAt))

	stored, err := b.GetMetadata(ctx, "derived")
	require.NoError(t, err)
	assert.Equal(t, meta.Title, stored.Title)
	assert.Equal(t, meta.Tags, stored.Tags)
	assert.Equal(t, meta.Size, stored.Size)
	assert.True(t, meta.UpdatedAt.Equal(stored.UpdatedAt))

	explicit, err := b.Save(ctx, "explicit", doc, &models.Metadata{Title: "Shelf title", Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "Shelf title", explicit.Title)
	assert.Equal(t, []string{"x"}, explicit.Tags)
	assert.Equal(t, "explicit", explicit.ID)
}

func testTimestamps(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	first, err := b.Save(ctx, "ts", story("v1"), nil)
	require.NoError(t, err)

	prev := first
	for i := 2; i <= 5; i++ {
		next, err := b.Save(ctx, "ts", story(fmt.Sprintf("v%d", i)), nil)
		require.NoError(t, err)

		assert.True(t, first.CreatedAt.Equal(next.CreatedAt), "created_at must be preserved")
		assert.True(t, next.UpdatedAt.After(prev.UpdatedAt), "updated_at must strictly increase")
		prev = next
	}

	stored, err := b.GetMetadata(ctx, "ts")
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(stored.CreatedAt))
	assert.True(t, prev.UpdatedAt.Equal(stored.UpdatedAt))
	assert.Equal(t, "v5", stored.Title)
}

func testNotFound(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	_, err := b.Load(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, b.Delete(ctx, "missing"), storage.ErrNotFound)

	_, err = b.GetMetadata(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	title := "x"
	_, err = b.UpdateMetadata(ctx, "missing", models.MetadataPatch{Title: &title})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = b.Export(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	exists, err := b.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testDelete(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	_, err := b.Save(ctx, "gone", story("Gone"), nil)
	require.NoError(t, err)
	_, err = b.Save(ctx, "stay", story("Stay"), nil)
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, "gone"))

	_, err = b.Load(ctx, "gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = b.GetMetadata(ctx, "gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := b.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "stay", list[0].ID)

	assert.ErrorIs(t, b.Delete(ctx, "gone"), storage.ErrNotFound)
}

func testInvalidKey(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	for _, key := range []string{"", "a/b", "../escape", ".hidden", "white space"} {
		_, err := b.Save(ctx, key, story("x"), nil)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "key %q", key)
	}

	_, err := b.Save(ctx, "nil-doc", nil, nil)
	assert.ErrorIs(t, err, storage.ErrSerialization)
}

func testList(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	saves := []struct {
		key  string
		tags []string
	}{
		{key: "alpha", tags: []string{"draft"}},
		{key: "bravo", tags: []string{"final"}},
		{key: "charlie", tags: []string{"draft", "final"}},
		{key: "delta"},
	}
	for _, s := range saves {
		_, err := b.Save(ctx, s.key, story(s.key, s.tags...), nil)
		require.NoError(t, err)
		// Разные updated_at для детерминированного порядка
		time.Sleep(3 * time.Millisecond)
	}

	// Внутренние документы не попадают в список
	_, err := b.Save(ctx, "__sync_state__", models.Document{"device_id": "d"}, nil)
	require.NoError(t, err)

	ids := func(list []*models.Metadata) []string {
		out := make([]string, 0, len(list))
		for _, m := range list {
			out = append(out, m.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		want   []string
		filter models.ListFilter
	}{
		{name: "all", filter: models.ListFilter{}, want: []string{"delta", "charlie", "bravo", "alpha"}},
		{name: "tag draft", filter: models.ListFilter{Tags: []string{"draft"}}, want: []string{"charlie", "alpha"}},
		{name: "any of tags", filter: models.ListFilter{Tags: []string{"final", "draft"}}, want: []string{"charlie", "bravo", "alpha"}},
		{name: "unknown tag", filter: models.ListFilter{Tags: []string{"none"}}, want: []string{}},
		{name: "limit", filter: models.ListFilter{Limit: 2}, want: []string{"delta", "charlie"}},
		{name: "offset", filter: models.ListFilter{Offset: 1, Limit: 2}, want: []string{"charlie", "bravo"}},
		{name: "offset past end", filter: models.ListFilter{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := b.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list))
		})
	}
}

func testUpdateMetadata(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	saved, err := b.Save(ctx, "meta", story("Original", "a"), nil)
	require.NoError(t, err)

	title := "Renamed"
	updated, err := b.UpdateMetadata(ctx, "meta", models.MetadataPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, []string{"a"}, updated.Tags)
	assert.True(t, saved.CreatedAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(saved.UpdatedAt))

	tags := []string{"b", "c"}
	updated2, err := b.UpdateMetadata(ctx, "meta", models.MetadataPatch{Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated2.Title)
	assert.Equal(t, []string{"b", "c"}, updated2.Tags)
	assert.True(t, updated2.UpdatedAt.After(updated.UpdatedAt))

	stored, err := b.GetMetadata(ctx, "meta")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
	assert.Equal(t, []string{"b", "c"}, stored.Tags)

	// Документ не меняется
	doc, err := b.Load(ctx, "meta")
	require.NoError(t, err)
	assert.Equal(t, "Original", doc.Title())

	list, err := b.List(ctx, models.ListFilter{Tags: []string{"c"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func testExportImport(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	doc := story("Exported", "e")
	_, err := b.Save(ctx, "export-me", doc, &models.Metadata{Title: "Shelf", Tags: []string{"e"}})
	require.NoError(t, err)

	data, err := b.Export(ctx, "export-me")
	require.NoError(t, err)

	env, err := storage.DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "export-me", env.ID)

	require.NoError(t, b.Delete(ctx, "export-me"))

	key, err := b.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "export-me", key)

	loaded, err := b.Load(ctx, key)
	require.NoError(t, err)
	want, err := doc.Normalize()
	require.NoError(t, err)
	assert.True(t, want.Equal(loaded))

	meta, err := b.GetMetadata(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Shelf", meta.Title)

	t.Run("generated key", func(t *testing.T) {
		key, err := b.Import(ctx, []byte(`{"format":"storysync.document","version":1,"document":{"title":"Anon"}}`))
		require.NoError(t, err)
		_, err = uuid.Parse(key)
		assert.NoError(t, err)

		doc, err := b.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Anon", doc.Title())
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := b.Import(ctx, []byte("not json"))
		assert.ErrorIs(t, err, storage.ErrSerialization)

		_, err = b.Import(ctx, []byte(`{"format":"storysync.document","version":1,"document":"text"}`))
		assert.ErrorIs(t, err, storage.ErrSerialization)
	})
}

func testStorageUsage(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	usage, err := b.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Zero(t, usage)

	var want int64
	for _, key := range []string{"u1", "u2", "u3"} {
		meta, err := b.Save(ctx, key, story(key), nil)
		require.NoError(t, err)
		want += meta.Size
	}

	usage, err = b.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, usage)

	meta, err := b.GetMetadata(ctx, "u2")
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, "u2"))

	usage, err = b.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, want-meta.Size, usage)
}

func testClear(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	for _, key := range []string{"c1", "c2"} {
		_, err := b.Save(ctx, key, story(key), nil)
		require.NoError(t, err)
	}
	if prefs, err := storage.Preferences(b); err == nil {
		require.NoError(t, prefs.SetPreference(ctx, "theme", "dark"))
	}

	require.NoError(t, b.Clear(ctx))
	require.NoError(t, b.Clear(ctx))

	list, err := b.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	usage, err := b.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Zero(t, usage)

	_, err = b.Load(ctx, "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	if prefs, err := storage.Preferences(b); err == nil {
		_, err := prefs.GetPreference(ctx, "theme")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}

	// Хранилище пригодно к работе после очистки
	_, err = b.Save(ctx, "after", story("After"), nil)
	require.NoError(t, err)
}

func testPreferences(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	prefs, err := storage.Preferences(b)
	if !b.Capabilities().Has(storage.CapPreferences) {
		assert.ErrorIs(t, err, storage.ErrUnsupported)
		return
	}
	require.NoError(t, err)

	_, err = prefs.GetPreference(ctx, "theme")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, prefs.SetPreference(ctx, "theme", "dark"))
	require.NoError(t, prefs.SetPreference(ctx, "font", "serif"))
	require.NoError(t, prefs.SetPreference(ctx, "theme", "light"))

	v, err := prefs.GetPreference(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	all, err := prefs.ListPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "light", "font": "serif"}, all)

	require.NoError(t, prefs.DeletePreference(ctx, "font"))
	require.NoError(t, prefs.DeletePreference(ctx, "font"))
	_, err = prefs.GetPreference(ctx, "font")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSyncQueue(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	queue, err := storage.SyncQueue(b)
	if !b.Capabilities().Has(storage.CapSyncQueue) {
		assert.ErrorIs(t, err, storage.ErrUnsupported)
		return
	}
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []storage.SyncRecord{
		{ID: "op-2", Key: "b", Payload: []byte(`{"n":2}`), EnqueuedAt: base.Add(time.Second)},
		{ID: "op-1", Key: "a", Payload: []byte(`{"n":1}`), EnqueuedAt: base},
		{ID: "op-3", Key: "c", Payload: []byte(`{"n":3}`), EnqueuedAt: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, queue.EnqueueSync(ctx, rec))
	}

	pending, err := queue.PendingSync(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "op-1", pending[0].ID)
	assert.Equal(t, "op-2", pending[1].ID)
	assert.Equal(t, "op-3", pending[2].ID)
	assert.Equal(t, []byte(`{"n":1}`), pending[0].Payload)
	assert.True(t, base.Equal(pending[0].EnqueuedAt))

	// Upsert по ID
	require.NoError(t, queue.EnqueueSync(ctx, storage.SyncRecord{
		ID: "op-2", Key: "b", Payload: []byte(`{"n":22}`), EnqueuedAt: base.Add(time.Second),
	}))

	limited, err := queue.PendingSync(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, []byte(`{"n":22}`), limited[1].Payload)

	require.NoError(t, queue.AckSync(ctx, "op-1", "unknown"))
	pending, err = queue.PendingSync(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "op-2", pending[0].ID)

	require.NoError(t, queue.ClearSyncQueue(ctx))
	pending, err = queue.PendingSync(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func testCredentials(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := open(t, newBackend)

	creds, err := storage.Credentials(b)
	if !b.Capabilities().Has(storage.CapCredentials) {
		assert.ErrorIs(t, err, storage.ErrUnsupported)
		return
	}
	require.NoError(t, err)

	_, err = creds.GetCredential(ctx, "cloud")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	blob := []byte{0x00, 0x01, 0xfe, 0xff}
	require.NoError(t, creds.SaveCredential(ctx, "cloud", blob))
	require.NoError(t, creds.SaveCredential(ctx, "backup", []byte("b")))

	got, err := creds.GetCredential(ctx, "cloud")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	names, err := creds.ListCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "cloud"}, names)

	require.NoError(t, creds.DeleteCredential(ctx, "cloud"))
	_, err = creds.GetCredential(ctx, "cloud")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, b.Clear(ctx))
	names, err = creds.ListCredentials(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func testWatch(t *testing.T, newBackend Factory) {
	b := open(t, newBackend)

	watcher, err := storage.Watcher(b)
	if !b.Capabilities().Has(storage.CapWatch) {
		assert.ErrorIs(t, err, storage.ErrUnsupported)
		return
	}
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := watcher.Watch(ctx)
	require.NoError(t, err)

	_, err = b.Save(context.Background(), "watched", story("Watched"), nil)
	require.NoError(t, err)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "events closed before change was seen")
			if ev.Key == "watched" {
				assert.Equal(t, storage.ChangeWrite, ev.Op)
				cancel()
				// Канал закрывается после отмены контекста
				for range events {
				}
				return
			}
		case <-timeout:
			t.Fatal("no change event for watched key")
		}
	}
}
