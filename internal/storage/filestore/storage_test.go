package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/storage/storagetest"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(t.TempDir(), WithWatchDebounce(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestFileContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		s, err := New(filepath.Join(t.TempDir(), "stories"), WithWatchDebounce(10*time.Millisecond))
		require.NoError(t, err)
		return s
	})
}

func TestNew_EmptyRoot(t *testing.T) {
	s, err := New("")
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestInitialize_WritesLayout(t *testing.T) {
	s := setupTestStorage(t)

	info, err := os.Stat(filepath.Join(s.Root(), documentsDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	version, err := s.StoredLayoutVersion()
	require.NoError(t, err)
	assert.Equal(t, LayoutVersion, version)
}

func TestInitialize_RejectsNewerLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, versionFile), []byte("42\n"), 0o600))

	s, err := New(root)
	require.NoError(t, err)

	err = s.Initialize(context.Background())
	assert.ErrorIs(t, err, storage.ErrBackend)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, "story", models.Document{"title": "x", "n": float64(i)}, nil)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), documentsDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "story.json", entries[0].Name())
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "real", models.Document{"title": "Real"}, nil)
	require.NoError(t, err)

	dir := filepath.Join(s.Root(), documentsDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".storysync-1.tmp"), []byte("{"), 0o600))

	list, err := s.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "real", list[0].ID)
}

func TestLoad_CorruptedFile(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	path := filepath.Join(s.Root(), documentsDir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metadata":`), 0o600))

	_, err := s.Load(ctx, "broken")
	assert.ErrorIs(t, err, storage.ErrSerialization)

	_, err = s.List(ctx, models.ListFilter{})
	assert.ErrorIs(t, err, storage.ErrSerialization)
}

func TestWatch_ExternalWriteAndRemove(t *testing.T) {
	s := setupTestStorage(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx)
	require.NoError(t, err)

	// Запись другим процессом: файл появляется напрямую в каталоге
	path := filepath.Join(s.Root(), documentsDir, "external.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metadata":{"id":"external"},"document":{}}`), 0o600))

	ev := waitEvent(t, events, "external")
	assert.Equal(t, storage.ChangeWrite, ev.Op)

	require.NoError(t, os.Remove(path))
	ev = waitEvent(t, events, "external")
	assert.Equal(t, storage.ChangeRemove, ev.Op)

	cancel()
	for range events {
	}
}

func TestWatch_NotInitialized(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Watch(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
}

func TestKeyFromFile(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		wantOK bool
	}{
		{name: "/a/story.json", key: "story", wantOK: true},
		{name: "v1.2.json", key: "v1.2", wantOK: true},
		{name: ".storysync-123.tmp", wantOK: false},
		{name: ".hidden.json", wantOK: false},
		{name: "readme.md", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := keyFromFile(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.key, key)
		})
	}
}

func waitEvent(t *testing.T, events <-chan storage.ChangeEvent, key string) storage.ChangeEvent {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "events channel closed")
			if ev.Key == key {
				return ev
			}
		case <-timeout:
			t.Fatalf("no event for %q", key)
			return storage.ChangeEvent{}
		}
	}
}
