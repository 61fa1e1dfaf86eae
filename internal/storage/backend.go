package storage

import (
	"context"
	"sort"
	"time"

	"github.com/iudanet/storysync/internal/models"
)

//go:generate moq -out backend_mock.go . Backend

// Backend defines the persistence contract implemented by every storage engine.
// Every operation except Initialize, Capabilities and Close returns
// ErrNotInitialized until Initialize succeeds.
type Backend interface {
	// Initialize prepares schema, directories or buckets. Idempotent.
	Initialize(ctx context.Context) error

	// Save atomically upserts the document and its metadata.
	// meta may be nil; Title and Tags are then derived from the document.
	// CreatedAt of an existing key is preserved, UpdatedAt strictly increases.
	Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error)

	// Load returns the stored document or ErrNotFound
	Load(ctx context.Context, key string) (models.Document, error)

	// Delete removes document and metadata or returns ErrNotFound
	Delete(ctx context.Context, key string) error

	// List returns metadata of user documents, most recently updated first.
	// Keys with the reserved prefix are not listed.
	List(ctx context.Context, filter models.ListFilter) ([]*models.Metadata, error)

	// Exists reports whether key is stored
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata returns metadata for key or ErrNotFound
	GetMetadata(ctx context.Context, key string) (*models.Metadata, error)

	// UpdateMetadata applies patch and bumps UpdatedAt
	UpdateMetadata(ctx context.Context, key string, patch models.MetadataPatch) (*models.Metadata, error)

	// Export encodes the document as a self-describing envelope
	Export(ctx context.Context, key string) ([]byte, error)

	// Import stores an envelope and returns the key it was stored under
	Import(ctx context.Context, data []byte) (string, error)

	// StorageUsage returns the sum of metadata sizes in bytes
	StorageUsage(ctx context.Context) (int64, error)

	// Clear removes all documents, metadata and capability data
	Clear(ctx context.Context) error

	// Capabilities lists optional interfaces this backend implements
	Capabilities() CapabilitySet

	// Close releases resources
	Close() error
}

// Capability names an optional backend feature.
type Capability string

const (
	CapPreferences Capability = "preferences"
	CapSyncQueue   Capability = "sync_queue"
	CapCredentials Capability = "credentials"
	CapWatch       Capability = "watch"
)

// CapabilitySet is the set of capabilities a backend advertises.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities sorted by name.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PreferenceStore is a string key/value store for user preferences.
type PreferenceStore interface {
	// GetPreference returns ErrNotFound if name is unset
	GetPreference(ctx context.Context, name string) (string, error)
	SetPreference(ctx context.Context, name, value string) error
	DeletePreference(ctx context.Context, name string) error
	ListPreferences(ctx context.Context) (map[string]string, error)
}

// SyncRecord is a queued outgoing sync operation. Payload is opaque to storage.
type SyncRecord struct {
	EnqueuedAt time.Time `json:"enqueued_at"`
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Payload    []byte    `json:"payload"`
}

// SyncQueueStore persists operations waiting for an external transport.
type SyncQueueStore interface {
	// EnqueueSync upserts a record by ID
	EnqueueSync(ctx context.Context, rec SyncRecord) error

	// PendingSync returns up to limit records in enqueue order (0 = all)
	PendingSync(ctx context.Context, limit int) ([]SyncRecord, error)

	// AckSync removes records by ID; unknown IDs are ignored
	AckSync(ctx context.Context, ids ...string) error

	ClearSyncQueue(ctx context.Context) error
}

// CredentialStore holds opaque, already encrypted credential blobs.
type CredentialStore interface {
	SaveCredential(ctx context.Context, name string, blob []byte) error

	// GetCredential returns ErrNotFound if name is unknown
	GetCredential(ctx context.Context, name string) ([]byte, error)

	DeleteCredential(ctx context.Context, name string) error
	ListCredentials(ctx context.Context) ([]string, error)
}

// ChangeOp describes what happened to a document on the physical medium.
type ChangeOp string

const (
	ChangeWrite  ChangeOp = "write"
	ChangeRemove ChangeOp = "remove"
)

// ChangeEvent reports a change to the medium, possibly made by another process.
type ChangeEvent struct {
	Key string   `json:"key"`
	Op  ChangeOp `json:"op"`
}

// ChangeWatcher streams changes until ctx is done. The channel is closed then.
type ChangeWatcher interface {
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

// Supports reports whether b advertises capability c.
func Supports(b Backend, c Capability) bool {
	return b != nil && b.Capabilities().Has(c)
}

// Preferences returns the preference store of b or ErrUnsupported.
func Preferences(b Backend) (PreferenceStore, error) {
	if p, ok := b.(PreferenceStore); ok && Supports(b, CapPreferences) {
		return p, nil
	}
	return nil, Unsupported("preferences", CapPreferences)
}

// SyncQueue returns the sync queue of b or ErrUnsupported.
func SyncQueue(b Backend) (SyncQueueStore, error) {
	if q, ok := b.(SyncQueueStore); ok && Supports(b, CapSyncQueue) {
		return q, nil
	}
	return nil, Unsupported("sync_queue", CapSyncQueue)
}

// Credentials returns the credential store of b or ErrUnsupported.
func Credentials(b Backend) (CredentialStore, error) {
	if c, ok := b.(CredentialStore); ok && Supports(b, CapCredentials) {
		return c, nil
	}
	return nil, Unsupported("credentials", CapCredentials)
}

// Watcher returns the change watcher of b or ErrUnsupported.
func Watcher(b Backend) (ChangeWatcher, error) {
	if w, ok := b.(ChangeWatcher); ok && Supports(b, CapWatch) {
		return w, nil
	}
	return nil, Unsupported("watch", CapWatch)
}
