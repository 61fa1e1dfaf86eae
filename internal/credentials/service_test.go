package credentials

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/storage/boltstore"
	"github.com/iudanet/storysync/internal/storage/filestore"
)

func setupService(t *testing.T) (*Service, *boltstore.Storage) {
	t.Helper()
	ctx := context.Background()

	b, err := boltstore.New(ctx, filepath.Join(t.TempDir(), "creds.bolt"))
	require.NoError(t, err)
	require.NoError(t, b.Initialize(ctx))
	t.Cleanup(func() { _ = b.Close() })

	svc, err := New(b)
	require.NoError(t, err)
	return svc, b
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	require.NoError(t, svc.Put(ctx, "dropbox", "token-123", "correct horse"))

	cred, err := svc.Get(ctx, "dropbox", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "dropbox", cred.Name)
	assert.Equal(t, "token-123", cred.Secret)
	assert.False(t, cred.CreatedAt.IsZero())

	// Перезапись
	require.NoError(t, svc.Put(ctx, "dropbox", "token-456", "new phrase"))
	cred, err = svc.Get(ctx, "dropbox", "new phrase")
	require.NoError(t, err)
	assert.Equal(t, "token-456", cred.Secret)
}

func TestGet_Errors(t *testing.T) {
	ctx := context.Background()
	svc, b := setupService(t)
	require.NoError(t, svc.Put(ctx, "dropbox", "token", "phrase"))

	_, err := svc.Get(ctx, "dropbox", "wrong")
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	_, err = svc.Get(ctx, "missing", "phrase")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Get(ctx, "dropbox", "")
	assert.ErrorContains(t, err, "passphrase cannot be empty")

	// Blob, перенесенный под другое имя, не расшифровывается
	blob, err := b.GetCredential(ctx, "dropbox")
	require.NoError(t, err)
	require.NoError(t, b.SaveCredential(ctx, "gdrive", blob))
	_, err = svc.Get(ctx, "gdrive", "phrase")
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	require.NoError(t, b.SaveCredential(ctx, "garbage", []byte("not json")))
	_, err = svc.Get(ctx, "garbage", "phrase")
	assert.ErrorIs(t, err, storage.ErrSerialization)

	require.NoError(t, b.SaveCredential(ctx, "future", []byte(`{"version":2}`)))
	_, err = svc.Get(ctx, "future", "phrase")
	assert.ErrorIs(t, err, storage.ErrSerialization)
}

func TestPut_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	assert.ErrorIs(t, svc.Put(ctx, "bad name", "s", "p"), storage.ErrInvalidKey)
	assert.ErrorIs(t, svc.Put(ctx, "__internal", "s", "p"), storage.ErrInvalidKey)
	assert.ErrorContains(t, svc.Put(ctx, "ok", "", "p"), "secret cannot be empty")
	assert.ErrorContains(t, svc.Put(ctx, "ok", "s", ""), "passphrase cannot be empty")
}

func TestListDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	require.NoError(t, svc.Put(ctx, "b", "1", "p"))
	require.NoError(t, svc.Put(ctx, "a", "2", "p"))

	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	require.NoError(t, svc.Delete(ctx, "a"))
	require.NoError(t, svc.Delete(ctx, "a"), "delete is idempotent")

	names, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestNew_Unsupported(t *testing.T) {
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	_, err = New(fs)
	assert.ErrorIs(t, err, storage.ErrUnsupported)
}
