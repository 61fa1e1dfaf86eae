package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/storage/storagetest"
)

// setupTestStorage создает инициализированное SQLite хранилище во временной директории
func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "stories.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestSQLiteContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "stories.db"))
		require.NoError(t, err)
		return s
	})
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("STORYSYNC_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STORYSYNC_POSTGRES_DSN is not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Backend {
		ctx := context.Background()

		// База общая для всех подтестов, очищаем через отдельное соединение
		cleaner, err := NewPostgres(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, cleaner.Initialize(ctx))
		require.NoError(t, cleaner.Clear(ctx))
		require.NoError(t, cleaner.Close())

		s, err := NewPostgres(ctx, dsn)
		require.NoError(t, err)
		return s
	})
}

func TestSchemaVersion(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	// Повторная инициализация не меняет версию
	require.NoError(t, s.Initialize(ctx))
	version, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stories.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	_, err = s.Save(ctx, "persisted", models.Document{"title": "Persisted"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Initialize(ctx))

	doc, err := reopened.Load(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", doc.Title())
}

func TestSave_RollbackOnFailure(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "atomic", models.Document{"title": "v1", "tags": []any{"a"}}, nil)
	require.NoError(t, err)

	// Ломаем таблицу тегов, чтобы транзакция упала на последнем шаге
	_, err = s.DB().ExecContext(ctx, `DROP TABLE document_tags`)
	require.NoError(t, err)

	_, err = s.Save(ctx, "atomic", models.Document{"title": "v2", "tags": []any{"b"}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrBackend)

	doc, err := s.Load(ctx, "atomic")
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Title())

	meta, err := s.GetMetadata(ctx, "atomic")
	require.NoError(t, err)
	assert.Equal(t, "v1", meta.Title)
}

func TestLoad_CorruptedBody(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "broken", models.Document{"title": "x"}, nil)
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, `UPDATE documents SET body = ? WHERE id = ?`, []byte("{not json"), "broken")
	require.NoError(t, err)

	_, err = s.Load(ctx, "broken")
	assert.ErrorIs(t, err, storage.ErrSerialization)
}

func TestRegistryOpensSQLite(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "registry.db")

	b, err := storage.Open(dsn)
	require.NoError(t, err)
	defer b.Close()

	s, ok := b.(*Storage)
	require.True(t, ok)
	assert.Equal(t, DialectSQLite, s.Dialect())
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		query   string
		want    string
	}{
		{dialect: DialectSQLite, query: "SELECT ? , ?", want: "SELECT ? , ?"},
		{dialect: DialectPostgres, query: "SELECT ? , ?", want: "SELECT $1 , $2"},
		{dialect: DialectPostgres, query: "IN (" + placeholders(3) + ")", want: "IN ($1, $2, $3)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect)+" "+tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, rebind(tt.dialect, tt.query))
		})
	}

	assert.Empty(t, placeholders(0))
}
