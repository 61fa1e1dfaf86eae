package autosave

import (
	"context"
	"errors"
	"time"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
)

// Conflict is a stored version that moved away from the base the local copy
// was edited from. It is a value, not an error.
type Conflict struct {
	RemoteUpdatedAt time.Time
	BaseUpdatedAt   time.Time
	Local           models.Document
	Remote          models.Document
	Key             string
}

type resolutionKind int

const (
	keepLocal resolutionKind = iota
	keepRemote
	merged
)

// Resolution tells the manager what to write after a conflict
type Resolution struct {
	doc  models.Document
	kind resolutionKind
}

var (
	// KeepLocal overwrites the stored version with the local copy
	KeepLocal = Resolution{kind: keepLocal}
	// KeepRemote drops the local copy and adopts the stored version as base
	KeepRemote = Resolution{kind: keepRemote}
)

// Merged writes doc instead of either side
func Merged(doc models.Document) Resolution {
	if doc == nil {
		return KeepLocal
	}
	return Resolution{kind: merged, doc: doc.Clone()}
}

// ConflictFunc resolves a conflict detected before a save
type ConflictFunc func(c *Conflict) Resolution

// DetectConflict compares the stored version of key with the recorded base,
// bypassing the cache. It returns nil when no base is recorded, the key is
// gone from storage, the stored version is unchanged since the base, or the
// stored content already equals local.
func (m *Manager) DetectConflict(ctx context.Context, key string, local models.Document) (*Conflict, error) {
	m.mu.Lock()
	b, ok := m.bases[key]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.detect(ctx, key, local, b)
}

func (m *Manager) detect(ctx context.Context, key string, local models.Document, b base) (*Conflict, error) {
	meta, err := m.saver.GetMetadata(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	remote, err := m.saver.LoadFresh(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	remoteFP, err := Fingerprint(remote)
	if err != nil {
		return nil, storage.SerializationError("detect_conflict", key, err)
	}
	if !meta.UpdatedAt.After(b.updatedAt) && remoteFP == b.fingerprint {
		return nil, nil
	}

	localFP, err := Fingerprint(local)
	if err != nil {
		return nil, storage.SerializationError("detect_conflict", key, err)
	}
	if localFP == remoteFP {
		return nil, nil
	}

	m.logger.Info("autosave conflict detected", "key", key,
		"base_updated_at", b.updatedAt, "remote_updated_at", meta.UpdatedAt)

	return &Conflict{
		Key:             key,
		Local:           local.Clone(),
		Remote:          remote,
		RemoteUpdatedAt: meta.UpdatedAt,
		BaseUpdatedAt:   b.updatedAt,
	}, nil
}

func (m *Manager) resolve(c *Conflict) Resolution {
	if m.onConflict == nil {
		return KeepLocal
	}
	return m.onConflict(c)
}
