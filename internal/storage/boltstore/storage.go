// Package boltstore implements the storage backend on an embedded bbolt file.
package boltstore

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/storysync/internal/storage"
)

var (
	// BoltDB bucket names
	bucketDocuments   = []byte("documents")
	bucketMetadata    = []byte("metadata")
	bucketPreferences = []byte("preferences")
	bucketSyncQueue   = []byte("sync_queue")
	bucketCredentials = []byte("credentials")
	bucketMeta        = []byte("meta")

	keySchemaVersion = []byte("schema_version")

	dataBuckets = [][]byte{bucketDocuments, bucketMetadata, bucketPreferences, bucketSyncQueue, bucketCredentials}
)

// migrations[i] upgrades the layout from version i to i+1
var migrations = []func(tx *bbolt.Tx) error{
	createBuckets,
}

// SchemaVersion is the layout version written by this package
var SchemaVersion = len(migrations)

func init() {
	storage.Register("bolt", func(dsn string) (storage.Backend, error) {
		return New(context.Background(), storage.PathOf(dsn))
	})
}

// Storage represents BoltDB storage implementation
type Storage struct {
	db          *bbolt.DB
	now         func() time.Time
	path        string
	initialized atomic.Bool
}

// New opens the BoltDB file at dbPath.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	return &Storage{db: db, path: dbPath, now: storage.Now}, nil
}

// Initialize creates buckets and applies pending layout migrations
func (s *Storage) Initialize(ctx context.Context) error {
	if s.db == nil {
		return storage.BackendError("initialize", "", bbolt.ErrDatabaseNotOpen)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create meta bucket: %w", err)
		}

		version := 0
		if raw := meta.Get(keySchemaVersion); raw != nil {
			if version, err = strconv.Atoi(string(raw)); err != nil {
				return fmt.Errorf("invalid schema version %q: %w", raw, err)
			}
		}
		if version > SchemaVersion {
			return fmt.Errorf("schema version %d is newer than supported %d", version, SchemaVersion)
		}

		for v := version; v < SchemaVersion; v++ {
			if err := migrations[v](tx); err != nil {
				return fmt.Errorf("migration to version %d failed: %w", v+1, err)
			}
		}

		return meta.Put(keySchemaVersion, []byte(strconv.Itoa(SchemaVersion)))
	})
	if err != nil {
		return storage.BackendError("initialize", "", err)
	}

	s.initialized.Store(true)
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	s.initialized.Store(false)
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Capabilities lists optional interfaces implemented by the bolt engine
func (s *Storage) Capabilities() storage.CapabilitySet {
	return storage.NewCapabilitySet(storage.CapPreferences, storage.CapSyncQueue, storage.CapCredentials)
}

// StoredSchemaVersion reads the layout version recorded in the file
func (s *Storage) StoredSchemaVersion() (int, error) {
	if s.db == nil {
		return 0, storage.BackendError("schema_version", "", bbolt.ErrDatabaseNotOpen)
	}

	version := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return nil
		}
		raw := meta.Get(keySchemaVersion)
		if raw == nil {
			return nil
		}
		v, err := strconv.Atoi(string(raw))
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	return version, err
}

// createBuckets создает необходимые buckets если они не существуют
func createBuckets(tx *bbolt.Tx) error {
	for _, name := range dataBuckets {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("failed to create %s bucket: %w", name, err)
		}
	}
	return nil
}

func (s *Storage) checkInitialized(op string) error {
	if s.db == nil || !s.initialized.Load() {
		return storage.NotInitialized(op)
	}
	return nil
}
