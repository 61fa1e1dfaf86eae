// Package filestore implements the storage backend as one JSON file per
// document under a root directory.
//
// Layout:
//
//	<root>/VERSION                 layout version
//	<root>/documents/<key>.json    {"metadata": {...}, "document": {...}}
//	<root>/preferences.json        preference map
//
// Writes go to a temp file in the same directory followed by a rename.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
)

const (
	documentsDir    = "documents"
	versionFile     = "VERSION"
	preferencesFile = "preferences.json"
	documentExt     = ".json"
	tempPattern     = ".storysync-*.tmp"
)

// migrations[i] upgrades the layout from version i to i+1
var migrations = []func(root string) error{
	createLayout,
}

// LayoutVersion is the layout version written by this package
var LayoutVersion = len(migrations)

func init() {
	storage.Register("file", func(dsn string) (storage.Backend, error) {
		return New(storage.PathOf(dsn))
	})
}

// fileRecord is the on-disk form of a document
type fileRecord struct {
	Metadata *models.Metadata `json:"metadata"`
	Document json.RawMessage  `json:"document"`
}

// Storage represents flat-file storage implementation
type Storage struct {
	now           func() time.Time
	logger        *slog.Logger
	root          string
	watchDebounce time.Duration
	mu            sync.RWMutex
	initialized   atomic.Bool
}

// Option configures a file store
type Option func(*Storage)

// WithLogger sets the logger used for watcher errors
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWatchDebounce sets the event coalescing window of Watch
func WithWatchDebounce(d time.Duration) Option {
	return func(s *Storage) {
		s.watchDebounce = d
	}
}

// New returns a file store rooted at root. Nothing is touched until Initialize.
func New(root string, opts ...Option) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	s := &Storage{
		root:          abs,
		now:           storage.Now,
		logger:        slog.Default(),
		watchDebounce: DefaultWatchDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute root directory
func (s *Storage) Root() string {
	return s.root
}

// Initialize creates the layout and applies pending layout migrations
func (s *Storage) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return storage.BackendError("initialize", "", err)
	}

	version, err := s.readVersion()
	if err != nil {
		return storage.BackendError("initialize", "", err)
	}
	if version > LayoutVersion {
		return storage.BackendError("initialize", "",
			fmt.Errorf("layout version %d is newer than supported %d", version, LayoutVersion))
	}

	for v := version; v < LayoutVersion; v++ {
		if err := migrations[v](s.root); err != nil {
			return storage.BackendError("initialize", "", fmt.Errorf("migration to version %d failed: %w", v+1, err))
		}
	}

	if err := writeFileAtomic(filepath.Join(s.root, versionFile), []byte(strconv.Itoa(LayoutVersion)+"\n")); err != nil {
		return storage.BackendError("initialize", "", err)
	}

	s.initialized.Store(true)
	return nil
}

// Close marks the store closed. Files stay on disk.
func (s *Storage) Close() error {
	s.initialized.Store(false)
	return nil
}

// Capabilities lists optional interfaces implemented by the file engine
func (s *Storage) Capabilities() storage.CapabilitySet {
	return storage.NewCapabilitySet(storage.CapPreferences, storage.CapWatch)
}

// StoredLayoutVersion reads the VERSION file; 0 when absent
func (s *Storage) StoredLayoutVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readVersion()
}

func (s *Storage) readVersion() (int, error) {
	data, err := os.ReadFile(filepath.Join(s.root, versionFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read version: %w", err)
	}

	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid layout version %q: %w", data, err)
	}
	return version, nil
}

func createLayout(root string) error {
	return os.MkdirAll(filepath.Join(root, documentsDir), 0o700)
}

func (s *Storage) checkInitialized(op string) error {
	if !s.initialized.Load() {
		return storage.NotInitialized(op)
	}
	return nil
}

func (s *Storage) documentsPath() string {
	return filepath.Join(s.root, documentsDir)
}

func (s *Storage) documentPath(key string) string {
	return filepath.Join(s.root, documentsDir, key+documentExt)
}

// keyFromFile returns the document key for a file name, or false for
// temp files and foreign files.
func keyFromFile(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, documentExt) {
		return "", false
	}
	return strings.TrimSuffix(base, documentExt), true
}

// writeFileAtomic writes data to a temp file next to path and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
