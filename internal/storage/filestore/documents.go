package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/validation"
)

// Save writes document and metadata into the key's file
func (s *Storage) Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
	if err := s.checkInitialized("save"); err != nil {
		return nil, err
	}

	rec, err := storage.Prepare("save", key, doc, meta)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.readRecord("save", key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	var prevMeta *models.Metadata
	if prev != nil {
		prevMeta = prev.Metadata
	}
	storage.Stamp(rec.Meta, prevMeta, s.now())

	if err := s.writeRecord("save", key, &fileRecord{Metadata: rec.Meta, Document: rec.Body}); err != nil {
		return nil, err
	}

	return rec.Meta, nil
}

// Load returns the stored document
func (s *Storage) Load(ctx context.Context, key string) (models.Document, error) {
	if err := s.checkInitialized("load"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.readRecord("load", key)
	if err != nil {
		return nil, err
	}
	return storage.DecodeBody("load", key, rec.Document)
}

// Delete removes the key's file
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.checkInitialized("delete"); err != nil {
		return err
	}
	if err := validation.ValidateInternalKey(key); err != nil {
		return storage.NotFound("delete", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.documentPath(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.NotFound("delete", key)
		}
		return storage.BackendError("delete", key, err)
	}
	return nil
}

// Exists reports whether the key's file exists
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkInitialized("exists"); err != nil {
		return false, err
	}
	if validation.ValidateInternalKey(key) != nil {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.documentPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, storage.BackendError("exists", key, err)
	}
	return true, nil
}

// List reads metadata of every document file
func (s *Storage) List(ctx context.Context, filter models.ListFilter) ([]*models.Metadata, error) {
	if err := s.checkInitialized("list"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.readAllMetadata("list")
	if err != nil {
		return nil, err
	}

	user := make([]*models.Metadata, 0, len(all))
	for _, m := range all {
		if !validation.IsReserved(m.ID) {
			user = append(user, m)
		}
	}
	return models.ApplyFilter(user, filter), nil
}

// GetMetadata returns metadata for key
func (s *Storage) GetMetadata(ctx context.Context, key string) (*models.Metadata, error) {
	if err := s.checkInitialized("get_metadata"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.readRecord("get_metadata", key)
	if err != nil {
		return nil, err
	}
	return rec.Metadata, nil
}

// UpdateMetadata patches title and tags and bumps updated_at
func (s *Storage) UpdateMetadata(ctx context.Context, key string, patch models.MetadataPatch) (*models.Metadata, error) {
	if err := s.checkInitialized("update_metadata"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord("update_metadata", key)
	if err != nil {
		return nil, err
	}

	m := rec.Metadata
	patch.Apply(m)
	if m.Tags == nil {
		m.Tags = []string{}
	}
	m.UpdatedAt = storage.NextUpdatedAt(m.UpdatedAt, s.now())

	if err := s.writeRecord("update_metadata", key, rec); err != nil {
		return nil, err
	}
	return m.Clone(), nil
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

// StorageUsage sums sizes recorded in metadata
func (s *Storage) StorageUsage(ctx context.Context) (int64, error) {
	if err := s.checkInitialized("storage_usage"); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.readAllMetadata("storage_usage")
	if err != nil {
		return 0, err
	}

	var total int64
	for _, m := range all {
		total += m.Size
	}
	return total, nil
}

// Clear removes every document file and the preferences file.
// The documents directory itself is kept so watchers stay attached.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.checkInitialized("clear"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.documentsPath())
	if err != nil {
		return storage.BackendError("clear", "", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.documentsPath(), e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return storage.BackendError("clear", e.Name(), err)
		}
	}

	if err := os.Remove(s.preferencesPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.BackendError("clear", "", err)
	}
	return nil
}

// readRecord reads and decodes the key's file. Caller holds s.mu.
func (s *Storage) readRecord(op, key string) (*fileRecord, error) {
	// Невалидный ключ не может соответствовать файлу
	if validation.ValidateInternalKey(key) != nil {
		return nil, storage.NotFound(op, key)
	}

	data, err := os.ReadFile(s.documentPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.NotFound(op, key)
		}
		return nil, storage.BackendError(op, key, err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, storage.SerializationError(op, key, err)
	}
	if rec.Metadata == nil || len(rec.Document) == 0 {
		return nil, storage.SerializationError(op, key, fmt.Errorf("incomplete document file"))
	}
	if rec.Metadata.Tags == nil {
		rec.Metadata.Tags = []string{}
	}
	rec.Metadata.ID = key
	return &rec, nil
}

// writeRecord atomically replaces the key's file. Caller holds s.mu.
func (s *Storage) writeRecord(op, key string, rec *fileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return storage.SerializationError(op, key, err)
	}
	if err := writeFileAtomic(s.documentPath(key), data); err != nil {
		return storage.BackendError(op, key, err)
	}
	return nil
}

// readAllMetadata reads metadata of every document file. Caller holds s.mu.
func (s *Storage) readAllMetadata(op string) ([]*models.Metadata, error) {
	entries, err := os.ReadDir(s.documentsPath())
	if err != nil {
		return nil, storage.BackendError(op, "", err)
	}

	all := make([]*models.Metadata, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := keyFromFile(e.Name())
		if !ok {
			continue
		}

		rec, err := s.readRecord(op, key)
		if err != nil {
			// Файл мог быть удален другим процессом между ReadDir и чтением
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		all = append(all, rec.Metadata)
	}
	return all, nil
}
