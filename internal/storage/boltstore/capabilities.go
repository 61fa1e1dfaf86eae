package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/storysync/internal/storage"
)

// GetPreference returns a stored preference value
func (s *Storage) GetPreference(ctx context.Context, name string) (string, error) {
	if err := s.checkInitialized("get_preference"); err != nil {
		return "", err
	}

	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketPreferences).Get([]byte(name))
		if raw == nil {
			return storage.NotFound("get_preference", name)
		}
		value = string(raw)
		return nil
	})
	if err != nil {
		return "", wrapErr("get_preference", name, err)
	}
	return value, nil
}

// SetPreference stores or replaces a preference
func (s *Storage) SetPreference(ctx context.Context, name, value string) error {
	if err := s.checkInitialized("set_preference"); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPreferences).Put([]byte(name), []byte(value))
	})
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

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPreferences).Delete([]byte(name))
	})
	if err != nil {
		return storage.BackendError("delete_preference", name, err)
	}
	return nil
}

// ListPreferences returns all preferences
func (s *Storage) ListPreferences(ctx context.Context) (map[string]string, error) {
	if err := s.checkInitialized("list_preferences"); err != nil {
		return nil, err
	}

	prefs := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPreferences).ForEach(func(k, v []byte) error {
			prefs[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, storage.BackendError("list_preferences", "", err)
	}
	return prefs, nil
}

// EnqueueSync upserts a queued sync record by ID
func (s *Storage) EnqueueSync(ctx context.Context, rec storage.SyncRecord) error {
	if err := s.checkInitialized("enqueue_sync"); err != nil {
		return err
	}

	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = s.now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return storage.SerializationError("enqueue_sync", rec.Key, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSyncQueue).Put([]byte(rec.ID), data)
	})
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

	var records []storage.SyncRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSyncQueue).ForEach(func(k, v []byte) error {
			var rec storage.SyncRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return storage.SerializationError("pending_sync", string(k), err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, wrapErr("pending_sync", "", err)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].EnqueuedAt.Equal(records[j].EnqueuedAt) {
			return records[i].EnqueuedAt.Before(records[j].EnqueuedAt)
		}
		return records[i].ID < records[j].ID
	})

	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// AckSync removes acknowledged records
func (s *Storage) AckSync(ctx context.Context, ids ...string) error {
	if err := s.checkInitialized("ack_sync"); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSyncQueue)
		for _, id := range ids {
			if err := bucket.Delete([]byte(id)); err != nil {
				return fmt.Errorf("failed to ack %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return storage.BackendError("ack_sync", "", err)
	}
	return nil
}

// ClearSyncQueue drops every queued record
func (s *Storage) ClearSyncQueue(ctx context.Context) error {
	if err := s.checkInitialized("clear_sync_queue"); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSyncQueue); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSyncQueue)
		return err
	})
	if err != nil {
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

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put([]byte(name), blob)
	})
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
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketCredentials).Get([]byte(name))
		if raw == nil {
			return storage.NotFound("get_credential", name)
		}
		// Значение валидно только внутри транзакции
		blob = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, wrapErr("get_credential", name, err)
	}
	return blob, nil
}

// DeleteCredential removes a credential; missing names are ignored
func (s *Storage) DeleteCredential(ctx context.Context, name string) error {
	if err := s.checkInitialized("delete_credential"); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Delete([]byte(name))
	})
	if err != nil {
		return storage.BackendError("delete_credential", name, err)
	}
	return nil
}

// ListCredentials returns credential names in lexical order
func (s *Storage) ListCredentials(ctx context.Context) ([]string, error) {
	if err := s.checkInitialized("list_credentials"); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Ключи в bbolt уже отсортированы
		return tx.Bucket(bucketCredentials).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, storage.BackendError("list_credentials", "", err)
	}
	return names, nil
}
