package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/validation"
)

// Save stores document and metadata in one transaction
func (s *Storage) Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
	if err := s.checkInitialized("save"); err != nil {
		return nil, err
	}

	rec, err := storage.Prepare("save", key, doc, meta)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		metaBucket := tx.Bucket(bucketMetadata)

		prev, err := readMetadata(metaBucket, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		storage.Stamp(rec.Meta, prev, s.now())

		// Сериализуем метаданные в JSON
		data, err := json.Marshal(rec.Meta)
		if err != nil {
			return storage.SerializationError("save", key, err)
		}

		if err := tx.Bucket(bucketDocuments).Put([]byte(key), rec.Body); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		if err := metaBucket.Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to save metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("save", key, err)
	}

	return rec.Meta, nil
}

// Load returns the stored document
func (s *Storage) Load(ctx context.Context, key string) (models.Document, error) {
	if err := s.checkInitialized("load"); err != nil {
		return nil, err
	}

	var doc models.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		body := tx.Bucket(bucketDocuments).Get([]byte(key))
		if body == nil {
			return storage.NotFound("load", key)
		}

		var err error
		doc, err = storage.DecodeBody("load", key, body)
		return err
	})
	if err != nil {
		return nil, wrapErr("load", key, err)
	}

	return doc, nil
}

// Delete removes document and metadata
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.checkInitialized("delete"); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		if docs.Get([]byte(key)) == nil {
			return storage.NotFound("delete", key)
		}

		if err := docs.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if err := tx.Bucket(bucketMetadata).Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete metadata: %w", err)
		}
		return nil
	})

	return wrapErr("delete", key, err)
}

// Exists reports whether a document is stored under key
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkInitialized("exists"); err != nil {
		return false, err
	}

	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketDocuments).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, storage.BackendError("exists", key, err)
	}
	return exists, nil
}

// List returns metadata of user documents ordered by recency
func (s *Storage) List(ctx context.Context, filter models.ListFilter) ([]*models.Metadata, error) {
	if err := s.checkInitialized("list"); err != nil {
		return nil, err
	}

	var all []*models.Metadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).ForEach(func(k, v []byte) error {
			if validation.IsReserved(string(k)) {
				return nil
			}

			var m models.Metadata
			if err := json.Unmarshal(v, &m); err != nil {
				return storage.SerializationError("list", string(k), err)
			}
			all = append(all, &m)
			return nil
		})
	})
	if err != nil {
		return nil, wrapErr("list", "", err)
	}

	return models.ApplyFilter(all, filter), nil
}

// GetMetadata returns metadata for key
func (s *Storage) GetMetadata(ctx context.Context, key string) (*models.Metadata, error) {
	if err := s.checkInitialized("get_metadata"); err != nil {
		return nil, err
	}

	var m *models.Metadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		m, err = readMetadata(tx.Bucket(bucketMetadata), key)
		return err
	})
	if err != nil {
		return nil, wrapErr("get_metadata", key, err)
	}
	return m, nil
}

// UpdateMetadata patches title and tags and bumps updated_at
func (s *Storage) UpdateMetadata(ctx context.Context, key string, patch models.MetadataPatch) (*models.Metadata, error) {
	if err := s.checkInitialized("update_metadata"); err != nil {
		return nil, err
	}

	var updated *models.Metadata
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)

		m, err := readMetadata(bucket, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return storage.NotFound("update_metadata", key)
			}
			return err
		}

		patch.Apply(m)
		if m.Tags == nil {
			m.Tags = []string{}
		}
		m.UpdatedAt = storage.NextUpdatedAt(m.UpdatedAt, s.now())

		data, err := json.Marshal(m)
		if err != nil {
			return storage.SerializationError("update_metadata", key, err)
		}
		if err := bucket.Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to save metadata: %w", err)
		}

		updated = m
		return nil
	})
	if err != nil {
		return nil, wrapErr("update_metadata", key, err)
	}

	return updated, nil
}

// Export encodes the document as an envelope
func (s *Storage) Export(ctx context.Context, key string) ([]byte, error) {
	return storage.ExportDocument(ctx, s, key)
}

// Import saves an envelope and returns its key
func (s *Storage) Import(ctx context.Context, data []byte) (string, error) {
	if err := s.checkInitialized("import"); err != nil {
		return "", err
	}
	return storage.ImportDocument(ctx, s, data)
}

// StorageUsage sums sizes over all metadata records
func (s *Storage) StorageUsage(ctx context.Context) (int64, error) {
	if err := s.checkInitialized("storage_usage"); err != nil {
		return 0, err
	}

	var total int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).ForEach(func(k, v []byte) error {
			var m models.Metadata
			if err := json.Unmarshal(v, &m); err != nil {
				return storage.SerializationError("storage_usage", string(k), err)
			}
			total += m.Size
			return nil
		})
	})
	if err != nil {
		return 0, wrapErr("storage_usage", "", err)
	}
	return total, nil
}

// Clear drops and recreates every data bucket in one transaction
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.checkInitialized("clear"); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range dataBuckets {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return fmt.Errorf("failed to drop %s bucket: %w", name, err)
			}
		}
		return createBuckets(tx)
	})

	return wrapErr("clear", "", err)
}

func readMetadata(bucket *bbolt.Bucket, key string) (*models.Metadata, error) {
	data := bucket.Get([]byte(key))
	if data == nil {
		return nil, storage.NotFound("get_metadata", key)
	}

	// Десериализуем
	var m models.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, storage.SerializationError("get_metadata", key, err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return &m, nil
}

// wrapErr keeps classified storage errors and wraps the rest as backend failures
func wrapErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if storage.KindOf(err) != storage.KindUnknown {
		return err
	}
	return storage.BackendError(op, key, err)
}
