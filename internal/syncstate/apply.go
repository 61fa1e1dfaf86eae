package syncstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
)

// Documents is the document store remote changes are merged into.
// *store.Service implements it.
type Documents interface {
	Store
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ApplyOptions tunes ApplyRemote
type ApplyOptions struct {
	// Resolver is used by the manual strategy
	Resolver protocol.Resolver

	// Clock stamps operations queued for merged documents. Defaults to a
	// hybrid clock over the manager clock.
	Clock *protocol.HybridClock

	Strategy protocol.Strategy

	// Window is the conflict window; zero or negative selects the default
	Window time.Duration
}

// ApplyResult summarizes one ApplyRemote call
type ApplyResult struct {
	Saved     []string `json:"saved"`
	Deleted   []string `json:"deleted"`
	Conflicts int      `json:"conflicts"`
	Skipped   int      `json:"skipped"`
}

// RecordLocal queues a local change as a pending operation and bumps this
// device's version in one persisted step.
func (m *Manager) RecordLocal(ctx context.Context, typ protocol.OperationType, key string, data models.Document, clock protocol.Clock) (protocol.Operation, error) {
	if clock == nil {
		clock = m.hybridClock()
	}

	op := protocol.NewOperation(typ, key, data, nil, m.DeviceID(), clock)
	err := m.mutate(ctx, func(s *State) {
		s.PendingOperations = append(s.PendingOperations, op.Clone())
		s.VersionVector = s.VersionVector.Increment(s.DeviceID)
	})
	if err != nil {
		return protocol.Operation{}, err
	}
	return op, nil
}

// hybridClock возвращает часы, которые не отстают от уже выданных меток
func (m *Manager) hybridClock() *protocol.HybridClock {
	clock := protocol.NewHybridClockWithSource(m.now)
	for _, op := range m.PendingOperations() {
		clock.Observe(op.Timestamp)
	}
	return clock
}

// ApplyRemote merges operations received from another device.
//
// Remote operations on keys without a concurrent local change are applied
// in timestamp order unless a pending local operation on the same key is
// newer; those are skipped and the local change stays queued. A newer
// remote operation supersedes the local pending ones for its key. Conflicting keys are resolved with opts.Strategy.
// When the remote side wins a conflict the local pending operations for
// that key are dropped; merged and keep-both results are queued as new local
// operations so the peer receives them. Finally the remote version vector is
// merged in and the run is recorded in the stats.
func (m *Manager) ApplyRemote(ctx context.Context, docs Documents, remote []protocol.Operation, remoteVV protocol.VersionVector, opts ApplyOptions) (ApplyResult, error) {
	started := m.now()
	result := ApplyResult{Saved: []string{}, Deleted: []string{}}

	clock := opts.Clock
	if clock == nil {
		clock = m.hybridClock()
	}
	for _, op := range remote {
		clock.Observe(op.Timestamp)
	}

	conflicts := protocol.DetectConflicts(m.PendingOperations(), remote, opts.Window)
	conflicted := make(map[string]struct{}, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.Key] = struct{}{}
	}

	// Вне окна конфликта побеждает более поздняя запись
	latestLocal := latestByKey(m.PendingOperations())
	superseded := make(map[string]struct{})
	ordered := make([]protocol.Operation, 0, len(remote))
	for _, op := range remote {
		if _, ok := conflicted[op.Key]; ok {
			continue
		}
		if local, ok := latestLocal[op.Key]; ok {
			if !op.IsNewerThan(local) {
				result.Skipped++
				continue
			}
			superseded[op.Key] = struct{}{}
		}
		ordered = append(ordered, op)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	for _, op := range ordered {
		applied, err := m.applyOperation(ctx, docs, op, &result)
		if err != nil {
			return result, m.fail(ctx, err)
		}
		if !applied {
			result.Skipped++
		}
	}

	if len(superseded) > 0 {
		err := m.mutate(ctx, func(s *State) {
			kept := s.PendingOperations[:0:0]
			for _, op := range s.PendingOperations {
				if _, drop := superseded[op.Key]; !drop {
					kept = append(kept, op)
				}
			}
			s.PendingOperations = kept
		})
		if err != nil {
			return result, m.fail(ctx, err)
		}
	}

	resolutions, err := protocol.ResolveAll(conflicts, opts.Strategy, protocol.ResolveOptions{
		Resolver: opts.Resolver,
		Exists: func(key string) bool {
			ok, err := docs.Exists(ctx, key)
			return err == nil && ok
		},
	})
	if err != nil {
		return result, m.fail(ctx, err)
	}

	for i, res := range resolutions {
		if err := m.applyResolution(ctx, docs, conflicts[i], res, clock, &result); err != nil {
			return result, m.fail(ctx, err)
		}
	}
	result.Conflicts = len(conflicts)

	err = m.mutate(ctx, func(s *State) {
		s.VersionVector = protocol.Merge(s.VersionVector, remoteVV)
		s.LastSyncTime = m.now()
		s.LastError = nil
		s.Stats.TotalSyncs++
		s.Stats.LastSyncDuration = m.now().Sub(started)
		s.Stats.ConflictsResolved += int64(len(conflicts))
	})
	if err != nil {
		return result, err
	}

	m.logger.Info("applied remote operations",
		"device_id", m.DeviceID(),
		"received", len(remote),
		"saved", len(result.Saved),
		"deleted", len(result.Deleted),
		"conflicts", result.Conflicts,
		"skipped", result.Skipped)
	return result, nil
}

// latestByKey returns the newest operation per key
func latestByKey(ops []protocol.Operation) map[string]protocol.Operation {
	latest := make(map[string]protocol.Operation, len(ops))
	for _, op := range ops {
		if cur, ok := latest[op.Key]; !ok || op.IsNewerThan(cur) {
			latest[op.Key] = op
		}
	}
	return latest
}

// applyOperation применяет одну удаленную операцию без конфликта.
// Возвращает false, если операция ничего не изменила.
func (m *Manager) applyOperation(ctx context.Context, docs Documents, op protocol.Operation, result *ApplyResult) (bool, error) {
	switch op.Type {
	case protocol.OpCreate, protocol.OpUpdate:
		if op.Data == nil {
			return false, nil
		}
		if _, err := docs.Save(ctx, op.Key, op.Data, nil); err != nil {
			return false, fmt.Errorf("failed to apply %s of %q: %w", op.Type, op.Key, err)
		}
		result.Saved = append(result.Saved, op.Key)
		return true, nil

	case protocol.OpDelete:
		return m.deleteDocument(ctx, docs, op.Key, result)

	case protocol.OpMetadataUpdate:
		doc, err := docs.Load(ctx, op.Key)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to load %q for metadata update: %w", op.Key, err)
		}
		snap := protocol.ApplyDelta(protocol.Snapshot{op.Key: doc}, []protocol.Operation{op})
		if _, err := docs.Save(ctx, op.Key, snap[op.Key], nil); err != nil {
			return false, fmt.Errorf("failed to apply metadata update of %q: %w", op.Key, err)
		}
		result.Saved = append(result.Saved, op.Key)
		return true, nil
	}
	return false, nil
}

func (m *Manager) deleteDocument(ctx context.Context, docs Documents, key string, result *ApplyResult) (bool, error) {
	err := docs.Delete(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete %q: %w", key, err)
	}
	result.Deleted = append(result.Deleted, key)
	return true, nil
}

func (m *Manager) applyResolution(ctx context.Context, docs Documents, c protocol.Conflict, res protocol.Resolution, clock protocol.Clock, result *ApplyResult) error {
	keys := make([]string, 0, len(res.Documents))
	for k := range res.Documents {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := docs.Save(ctx, k, res.Documents[k], nil); err != nil {
			return fmt.Errorf("failed to save resolution of %q: %w", c.Key, err)
		}
		result.Saved = append(result.Saved, k)
	}
	for _, k := range res.Deleted {
		if _, err := m.deleteDocument(ctx, docs, k, result); err != nil {
			return err
		}
	}

	if res.Winner != nil && res.Winner.ID == c.Local.ID {
		// Локальная операция остается в очереди и уйдет к другому устройству
		return nil
	}

	remoteWon := res.Winner != nil
	_, rewritten := res.Documents[c.Key]
	deviceID := m.DeviceID()

	return m.mutate(ctx, func(s *State) {
		if remoteWon || rewritten {
			kept := s.PendingOperations[:0:0]
			for _, op := range s.PendingOperations {
				if op.Key != c.Key {
					kept = append(kept, op)
				}
			}
			s.PendingOperations = kept
		}
		if remoteWon {
			return
		}

		for _, k := range keys {
			typ := protocol.OpCreate
			if k == c.Key {
				typ = protocol.OpUpdate
			}
			s.PendingOperations = append(s.PendingOperations, protocol.NewOperation(typ, k, res.Documents[k], nil, deviceID, clock))
			s.VersionVector = s.VersionVector.Increment(deviceID)
		}
	})
}

// fail records err as the last sync error and returns it
func (m *Manager) fail(ctx context.Context, err error) error {
	if recErr := m.RecordError(ctx, err); recErr != nil {
		m.logger.Error("failed to record sync error", "error", recErr)
	}
	return err
}
