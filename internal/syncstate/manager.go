// Package syncstate persists the per-device sync state (device id, version
// vector, pending operations and statistics) as a reserved document.
package syncstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
)

// StateKey is the reserved document key holding the sync state
const StateKey = "__sync_state__"

//go:generate moq -out store_mock.go . Store

// Store is the part of the storage service the state is persisted through.
// *store.Service implements it.
type Store interface {
	Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error)
	Load(ctx context.Context, key string) (models.Document, error)
}

// Option configures a Manager
type Option func(*Manager)

// WithClock задает источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.clock = now
	}
}

// Manager owns the sync state. Every mutator persists the whole state before
// returning and rolls the in-memory copy back if persisting fails. Each call
// is atomic; callers serialize whole sync runs themselves.
type Manager struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
	state  State
	mu     sync.Mutex
}

// New loads the state from store or creates and persists a default state
// with a fresh random device id.
func New(ctx context.Context, store Store, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load(ctx context.Context) error {
	doc, err := m.store.Load(ctx, StateKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.state = newState(uuid.New().String(), m.now())
		m.logger.Info("created sync state", "device_id", m.state.DeviceID)
		return m.persist(ctx)
	case err != nil:
		return fmt.Errorf("failed to load sync state: %w", err)
	}

	state, err := decodeState(doc)
	if err != nil {
		return storage.SerializationError("load_sync_state", StateKey, err)
	}

	m.state = state
	if m.state.DeviceID == "" {
		m.state.DeviceID = uuid.New().String()
		m.logger.Warn("sync state had no device id, generated a new one", "device_id", m.state.DeviceID)
		return m.persist(ctx)
	}
	return nil
}

func (m *Manager) now() time.Time {
	return m.clock().UTC()
}

// persist пишет состояние целиком; вызывается под m.mu
func (m *Manager) persist(ctx context.Context) error {
	doc, err := models.NormalizeDocument(m.state)
	if err != nil {
		return storage.SerializationError("save_sync_state", StateKey, err)
	}
	if _, err := m.store.Save(ctx, StateKey, doc, nil); err != nil {
		return fmt.Errorf("failed to persist sync state: %w", err)
	}
	return nil
}

func decodeState(doc models.Document) (State, error) {
	data, err := doc.Marshal()
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode sync state: %w", err)
	}
	if state.VersionVector == nil {
		state.VersionVector = protocol.VersionVector{}
	}
	if state.PendingOperations == nil {
		state.PendingOperations = []protocol.Operation{}
	}
	return state, nil
}

// mutate applies fn and persists. On failure the previous state is restored.
func (m *Manager) mutate(ctx context.Context, fn func(s *State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state.Clone()
	fn(&m.state)

	if err := m.persist(ctx); err != nil {
		m.state = prev
		return err
	}
	return nil
}

// DeviceID returns the id of this device
func (m *Manager) DeviceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeviceID
}

// State returns a copy of the whole state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// VersionVector returns a copy of the version vector
func (m *Manager) VersionVector() protocol.VersionVector {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.VersionVector.Clone()
}

// PendingOperations returns a copy of the queued operations
func (m *Manager) PendingOperations() []protocol.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOperations(m.state.PendingOperations)
}

// Stats returns the sync statistics
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Stats
}

// LastSyncTime returns the time of the last successful sync, zero if none
func (m *Manager) LastSyncTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastSyncTime
}

// LastError returns the last recorded sync error or nil
func (m *Manager) LastError() *SyncError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.LastError == nil {
		return nil
	}
	e := *m.state.LastError
	return &e
}

// UpdateLastSyncTime records t as the last successful sync
func (m *Manager) UpdateLastSyncTime(ctx context.Context, t time.Time) error {
	return m.mutate(ctx, func(s *State) {
		s.LastSyncTime = t.UTC()
	})
}

// UpdateVersionVector merges vv into the stored vector (per-device maximum)
func (m *Manager) UpdateVersionVector(ctx context.Context, vv protocol.VersionVector) error {
	return m.mutate(ctx, func(s *State) {
		s.VersionVector = protocol.Merge(s.VersionVector, vv)
	})
}

// IncrementVersion bumps this device's counter and returns the new value
func (m *Manager) IncrementVersion(ctx context.Context) (int64, error) {
	var next int64
	err := m.mutate(ctx, func(s *State) {
		s.VersionVector = s.VersionVector.Increment(s.DeviceID)
		next = s.VersionVector.Get(s.DeviceID)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// QueueOperation appends op to the pending operations
func (m *Manager) QueueOperation(ctx context.Context, op protocol.Operation) error {
	return m.mutate(ctx, func(s *State) {
		s.PendingOperations = append(s.PendingOperations, op.Clone())
	})
}

// RemovePendingOperation removes the operation with id. Unknown ids are ignored.
func (m *Manager) RemovePendingOperation(ctx context.Context, id string) error {
	_, err := m.RemovePendingOperationsMatching(ctx, func(op protocol.Operation) bool {
		return op.ID == id
	})
	return err
}

// RemovePendingOperationsMatching removes every pending operation for which
// match returns true and reports how many were removed
func (m *Manager) RemovePendingOperationsMatching(ctx context.Context, match func(op protocol.Operation) bool) (int, error) {
	removed := 0
	err := m.mutate(ctx, func(s *State) {
		kept := s.PendingOperations[:0:0]
		for _, op := range s.PendingOperations {
			if match(op) {
				removed++
				continue
			}
			kept = append(kept, op)
		}
		s.PendingOperations = kept
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ClearPendingOperations drops every pending operation
func (m *Manager) ClearPendingOperations(ctx context.Context) error {
	return m.mutate(ctx, func(s *State) {
		s.PendingOperations = []protocol.Operation{}
	})
}

// RecordSync counts a finished sync run
func (m *Manager) RecordSync(ctx context.Context, duration time.Duration, conflictsResolved int) error {
	return m.mutate(ctx, func(s *State) {
		s.Stats.TotalSyncs++
		s.Stats.LastSyncDuration = duration
		s.Stats.ConflictsResolved += int64(conflictsResolved)
	})
}

// RecordBandwidth adds transferred byte counts
func (m *Manager) RecordBandwidth(ctx context.Context, sent, received int64) error {
	return m.mutate(ctx, func(s *State) {
		s.Stats.BytesSent += sent
		s.Stats.BytesReceived += received
	})
}

// RecordError stores err as the last sync error
func (m *Manager) RecordError(ctx context.Context, syncErr error) error {
	if syncErr == nil {
		return m.ClearError(ctx)
	}

	now := m.now()
	m.logger.Warn("sync failed", "device_id", m.DeviceID(), "error", syncErr)
	return m.mutate(ctx, func(s *State) {
		s.LastError = &SyncError{Time: now, Message: syncErr.Error()}
	})
}

// ClearError forgets the last sync error
func (m *Manager) ClearError(ctx context.Context) error {
	return m.mutate(ctx, func(s *State) {
		s.LastError = nil
	})
}

// Reset clears everything except the device id
func (m *Manager) Reset(ctx context.Context) error {
	now := m.now()
	return m.mutate(ctx, func(s *State) {
		*s = newState(s.DeviceID, now)
	})
}
