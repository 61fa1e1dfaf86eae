package storage

import (
	"errors"
	"time"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/validation"
)

// Record is a document prepared for persistence by an engine.
type Record struct {
	Meta *models.Metadata
	Body []byte
}

// Prepare validates key, encodes doc and derives metadata.
// Caller-supplied Title and Tags win over the document fields.
// Timestamps are left for Stamp.
func Prepare(op, key string, doc models.Document, meta *models.Metadata) (*Record, error) {
	if err := validation.ValidateInternalKey(key); err != nil {
		return nil, InvalidKey(op, key, err)
	}
	if doc == nil {
		return nil, SerializationError(op, key, errors.New("document cannot be nil"))
	}

	body, err := doc.Marshal()
	if err != nil {
		return nil, SerializationError(op, key, err)
	}

	var m *models.Metadata
	if meta != nil {
		m = meta.Clone()
	} else {
		m = &models.Metadata{Title: doc.Title(), Tags: doc.Tags()}
	}
	m.ID = key
	m.Size = int64(len(body))
	if m.Tags == nil {
		m.Tags = []string{}
	}

	return &Record{Meta: m, Body: body}, nil
}

// Now returns the current UTC time at millisecond precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NextUpdatedAt returns now unless it does not advance past prev,
// in which case prev plus one millisecond.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

// Stamp sets timestamps of m. prev is the stored metadata of the key, nil if new.
func Stamp(m, prev *models.Metadata, now time.Time) {
	now = now.UTC().Truncate(time.Millisecond)
	if prev == nil {
		m.CreatedAt = now
		m.UpdatedAt = now
		return
	}
	m.CreatedAt = prev.CreatedAt
	m.UpdatedAt = NextUpdatedAt(prev.UpdatedAt, now)
}

// DecodeBody decodes a stored document, mapping failures to ErrSerialization.
func DecodeBody(op, key string, body []byte) (models.Document, error) {
	doc, err := models.UnmarshalDocument(body)
	if err != nil {
		return nil, SerializationError(op, key, err)
	}
	return doc, nil
}
