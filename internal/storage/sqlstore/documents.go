package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
)

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
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

// Save upserts document, metadata and tag index in one transaction
func (s *Storage) Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error) {
	if err := s.checkInitialized("save"); err != nil {
		return nil, err
	}

	rec, err := storage.Prepare("save", key, doc, meta)
	if err != nil {
		return nil, err
	}

	tags, err := json.Marshal(rec.Meta.Tags)
	if err != nil {
		return nil, storage.SerializationError("save", key, err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := s.getMetadata(ctx, tx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		storage.Stamp(rec.Meta, prev, s.now())

		m := rec.Meta
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO documents (id, body, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				body = excluded.body,
				updated_at = excluded.updated_at
		`), key, rec.Body, toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}

		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO metadata (id, title, tags, size, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				tags = excluded.tags,
				size = excluded.size,
				updated_at = excluded.updated_at
		`), key, m.Title, string(tags), m.Size, toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert metadata: %w", err)
		}

		return s.replaceTags(ctx, tx, key, m.Tags)
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

	var body []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM documents WHERE id = ?`), key).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFound("load", key)
		}
		return nil, storage.BackendError("load", key, err)
	}

	return storage.DecodeBody("load", key, body)
}

// Delete removes document, metadata and tags
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.checkInitialized("delete"); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM document_tags WHERE id = ?`), key); err != nil {
			return fmt.Errorf("failed to delete tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM metadata WHERE id = ?`), key); err != nil {
			return fmt.Errorf("failed to delete metadata: %w", err)
		}

		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE id = ?`), key)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return storage.NotFound("delete", key)
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

	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM documents WHERE id = ?`), key).Scan(&n)
	if err != nil {
		return false, storage.BackendError("exists", key, err)
	}
	return n > 0, nil
}

// List returns metadata ordered by recency with optional tag filter and pagination
func (s *Storage) List(ctx context.Context, filter models.ListFilter) ([]*models.Metadata, error) {
	if err := s.checkInitialized("list"); err != nil {
		return nil, err
	}

	query := `
		SELECT m.id, m.title, m.tags, m.size, m.created_at, m.updated_at
		FROM metadata m
		WHERE substr(m.id, 1, 2) <> '__'`
	args := make([]any, 0, len(filter.Tags)+2)

	if len(filter.Tags) > 0 {
		query += ` AND m.id IN (SELECT t.id FROM document_tags t WHERE t.tag IN (` + placeholders(len(filter.Tags)) + `))`
		for _, tag := range filter.Tags {
			args = append(args, tag)
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	offset := max(filter.Offset, 0)
	query += ` ORDER BY m.updated_at DESC, m.id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, storage.BackendError("list", "", err)
	}
	defer rows.Close()

	list := make([]*models.Metadata, 0)
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, wrapErr("list", "", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.BackendError("list", "", err)
	}

	return list, nil
}

// GetMetadata returns metadata for key
func (s *Storage) GetMetadata(ctx context.Context, key string) (*models.Metadata, error) {
	if err := s.checkInitialized("get_metadata"); err != nil {
		return nil, err
	}

	m, err := s.getMetadata(ctx, s.db, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.NotFound("get_metadata", key)
		}
		return nil, wrapErr("get_metadata", key, err)
	}
	return m, nil
}

// UpdateMetadata patches title and tags and bumps updated_at on both tables
func (s *Storage) UpdateMetadata(ctx context.Context, key string, patch models.MetadataPatch) (*models.Metadata, error) {
	if err := s.checkInitialized("update_metadata"); err != nil {
		return nil, err
	}

	var updated *models.Metadata
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := s.getMetadata(ctx, tx, key)
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

		tags, err := json.Marshal(m.Tags)
		if err != nil {
			return storage.SerializationError("update_metadata", key, err)
		}

		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE metadata SET title = ?, tags = ?, updated_at = ? WHERE id = ?
		`), m.Title, string(tags), toMillis(m.UpdatedAt), key)
		if err != nil {
			return fmt.Errorf("failed to update metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, s.rebind(`UPDATE documents SET updated_at = ? WHERE id = ?`), toMillis(m.UpdatedAt), key)
		if err != nil {
			return fmt.Errorf("failed to touch document: %w", err)
		}

		if patch.Tags != nil {
			if err := s.replaceTags(ctx, tx, key, m.Tags); err != nil {
				return err
			}
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

// StorageUsage returns the sum of document sizes
func (s *Storage) StorageUsage(ctx context.Context) (int64, error) {
	if err := s.checkInitialized("storage_usage"); err != nil {
		return 0, err
	}

	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM metadata`).Scan(&total)
	if err != nil {
		return 0, storage.BackendError("storage_usage", "", err)
	}
	return total, nil
}

// Clear removes all rows from every table in one transaction
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.checkInitialized("clear"); err != nil {
		return err
	}

	tables := []string{"document_tags", "metadata", "documents", "preferences", "sync_queue", "credentials"}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})

	return wrapErr("clear", "", err)
}

func (s *Storage) getMetadata(ctx context.Context, q querier, key string) (*models.Metadata, error) {
	row := q.QueryRowContext(ctx, s.rebind(`
		SELECT id, title, tags, size, created_at, updated_at
		FROM metadata WHERE id = ?
	`), key)

	m, err := scanMetadata(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFound("get_metadata", key)
		}
		return nil, err
	}
	return m, nil
}

func (s *Storage) replaceTags(ctx context.Context, tx *sql.Tx, key string, tags []string) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM document_tags WHERE id = ?`), key); err != nil {
		return fmt.Errorf("failed to reset tags: %w", err)
	}

	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}

		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO document_tags (id, tag) VALUES (?, ?)`), key, tag); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (*models.Metadata, error) {
	var (
		m                    models.Metadata
		tags                 string
		createdAt, updatedAt int64
	)

	if err := row.Scan(&m.ID, &m.Title, &tags, &m.Size, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, storage.SerializationError("scan", m.ID, fmt.Errorf("failed to decode tags: %w", err))
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}

	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return &m, nil
}
