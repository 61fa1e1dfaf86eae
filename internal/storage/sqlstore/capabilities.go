package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iudanet/storysync/internal/storage"
)

// GetPreference returns a stored preference value
func (s *Storage) GetPreference(ctx context.Context, name string) (string, error) {
	if err := s.checkInitialized("get_preference"); err != nil {
		return "", err
	}

	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM preferences WHERE name = ?`), name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.NotFound("get_preference", name)
		}
		return "", storage.BackendError("get_preference", name, err)
	}
	return value, nil
}

// SetPreference stores or replaces a preference
func (s *Storage) SetPreference(ctx context.Context, name, value string) error {
	if err := s.checkInitialized("set_preference"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO preferences (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`), name, value)
	if err != nil {
		return storage.BackendError("set_preference", name, err)
	}
	return nil
}

// DeletePreference removes a preference; missing names are ignored
func (s *Storage) DeletePreference(ctx context.Context, name string) error {
	if err := s.checkInitialized("delete_preference"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM preferences WHERE name = ?`), name); err != nil {
		return storage.BackendError("delete_preference", name, err)
	}
	return nil
}

// ListPreferences returns all preferences
func (s *Storage) ListPreferences(ctx context.Context) (map[string]string, error) {
	if err := s.checkInitialized("list_preferences"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM preferences`)
	if err != nil {
		return nil, storage.BackendError("list_preferences", "", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, storage.BackendError("list_preferences", "", err)
		}
		prefs[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, storage.BackendError("list_preferences", "", err)
	}
	return prefs, nil
}

// EnqueueSync upserts a queued sync record by ID
func (s *Storage) EnqueueSync(ctx context.Context, rec storage.SyncRecord) error {
	if err := s.checkInitialized("enqueue_sync"); err != nil {
		return err
	}

	enqueuedAt := rec.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = s.now()
	}
	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sync_queue (id, doc_key, payload, enqueued_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			doc_key = excluded.doc_key,
			payload = excluded.payload,
			enqueued_at = excluded.enqueued_at
	`), rec.ID, rec.Key, payload, toMillis(enqueuedAt))
	if err != nil {
		return storage.BackendError("enqueue_sync", rec.Key, err)
	}
	return nil
}

// PendingSync returns queued records oldest first
func (s *Storage) PendingSync(ctx context.Context, limit int) ([]storage.SyncRecord, error) {
	if err := s.checkInitialized("pending_sync"); err != nil {
		return nil, err
	}

	query := `SELECT id, doc_key, payload, enqueued_at FROM sync_queue ORDER BY enqueued_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, storage.BackendError("pending_sync", "", err)
	}
	defer rows.Close()

	var records []storage.SyncRecord
	for rows.Next() {
		var (
			rec        storage.SyncRecord
			enqueuedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.Payload, &enqueuedAt); err != nil {
			return nil, storage.BackendError("pending_sync", "", err)
		}
		rec.EnqueuedAt = fromMillis(enqueuedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.BackendError("pending_sync", "", err)
	}
	return records, nil
}

// AckSync removes acknowledged records
func (s *Storage) AckSync(ctx context.Context, ids ...string) error {
	if err := s.checkInitialized("ack_sync"); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `DELETE FROM sync_queue WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return storage.BackendError("ack_sync", "", err)
	}
	return nil
}

// ClearSyncQueue drops every queued record
func (s *Storage) ClearSyncQueue(ctx context.Context) error {
	if err := s.checkInitialized("clear_sync_queue"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return storage.BackendError("clear_sync_queue", "", err)
	}
	return nil
}

// SaveCredential stores an encrypted credential blob
func (s *Storage) SaveCredential(ctx context.Context, name string, blob []byte) error {
	if err := s.checkInitialized("save_credential"); err != nil {
		return err
	}
	if blob == nil {
		blob = []byte{}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO credentials (name, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
	`), name, blob, toMillis(s.now()))
	if err != nil {
		return storage.BackendError("save_credential", name, err)
	}
	return nil
}

// GetCredential returns a stored credential blob
func (s *Storage) GetCredential(ctx context.Context, name string) ([]byte, error) {
	if err := s.checkInitialized("get_credential"); err != nil {
		return nil, err
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT blob FROM credentials WHERE name = ?`), name).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFound("get_credential", name)
		}
		return nil, storage.BackendError("get_credential", name, err)
	}
	return blob, nil
}

// DeleteCredential removes a credential; missing names are ignored
func (s *Storage) DeleteCredential(ctx context.Context, name string) error {
	if err := s.checkInitialized("delete_credential"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM credentials WHERE name = ?`), name); err != nil {
		return storage.BackendError("delete_credential", name, err)
	}
	return nil
}

// ListCredentials returns credential names in lexical order
func (s *Storage) ListCredentials(ctx context.Context) ([]string, error) {
	if err := s.checkInitialized("list_credentials"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM credentials ORDER BY name`)
	if err != nil {
		return nil, storage.BackendError("list_credentials", "", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storage.BackendError("list_credentials", "", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.BackendError("list_credentials", "", err)
	}
	return names, nil
}
