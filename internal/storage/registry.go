package storage

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Factory opens an uninitialized backend for dsn.
type Factory func(dsn string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine available under scheme. Engines call it from init.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := registry[scheme]; dup {
		panic("storage: Register called twice for scheme " + scheme)
	}
	registry[scheme] = factory
}

// Schemes returns registered scheme names, sorted.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open selects an engine by the DSN scheme and opens it.
// A DSN without a scheme is a sqlite path when it ends in .db, .sqlite or
// .sqlite3, a bolt file for .bolt, and a file store directory otherwise.
func Open(dsn string) (Backend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty storage DSN")
	}

	scheme := SchemeOf(dsn)

	registryMu.RLock()
	factory, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage scheme %q (registered: %s)", scheme, strings.Join(Schemes(), ", "))
	}

	b, err := factory(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", scheme, err)
	}
	return b, nil
}

// SchemeOf returns the scheme of dsn, inferring one for bare paths.
func SchemeOf(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme := dsn[:i]
		if scheme == "postgresql" {
			return "postgres"
		}
		return scheme
	}
	switch strings.ToLower(filepath.Ext(dsn)) {
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	case ".bolt":
		return "bolt"
	default:
		return "file"
	}
}

// PathOf strips the scheme prefix from a path-style DSN.
func PathOf(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		return dsn[i+3:]
	}
	return dsn
}
