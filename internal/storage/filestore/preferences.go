package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/iudanet/storysync/internal/storage"
)

func (s *Storage) preferencesPath() string {
	return filepath.Join(s.root, preferencesFile)
}

// readPreferences loads the preference map. Caller holds s.mu.
func (s *Storage) readPreferences(op string) (map[string]string, error) {
	prefs := make(map[string]string)

	data, err := os.ReadFile(s.preferencesPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return prefs, nil
		}
		return nil, storage.BackendError(op, "", err)
	}

	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, storage.SerializationError(op, preferencesFile, err)
	}
	if prefs == nil {
		prefs = make(map[string]string)
	}
	return prefs, nil
}

func (s *Storage) writePreferences(op string, prefs map[string]string) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return storage.SerializationError(op, preferencesFile, err)
	}
	if err := writeFileAtomic(s.preferencesPath(), data); err != nil {
		return storage.BackendError(op, "", err)
	}
	return nil
}

// GetPreference returns a stored preference value
func (s *Storage) GetPreference(ctx context.Context, name string) (string, error) {
	if err := s.checkInitialized("get_preference"); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, err := s.readPreferences("get_preference")
	if err != nil {
		return "", err
	}
	value, ok := prefs[name]
	if !ok {
		return "", storage.NotFound("get_preference", name)
	}
	return value, nil
}

// SetPreference stores or replaces a preference
func (s *Storage) SetPreference(ctx context.Context, name, value string) error {
	if err := s.checkInitialized("set_preference"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.readPreferences("set_preference")
	if err != nil {
		return err
	}
	prefs[name] = value
	return s.writePreferences("set_preference", prefs)
}

// DeletePreference removes a preference; missing names are ignored
func (s *Storage) DeletePreference(ctx context.Context, name string) error {
	if err := s.checkInitialized("delete_preference"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.readPreferences("delete_preference")
	if err != nil {
		return err
	}
	if _, ok := prefs[name]; !ok {
		return nil
	}
	delete(prefs, name)
	return s.writePreferences("delete_preference", prefs)
}

// ListPreferences returns all preferences
func (s *Storage) ListPreferences(ctx context.Context) (map[string]string, error) {
	if err := s.checkInitialized("list_preferences"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readPreferences("list_preferences")
}
