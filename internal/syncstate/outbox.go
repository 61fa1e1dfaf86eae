package syncstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/pkg/api"
)

// StagePending copies every pending operation into the backend sync queue in
// wire form, where a transport picks them up. Records are upserted by
// operation id, so staging twice is harmless. Returns the number staged.
func (m *Manager) StagePending(ctx context.Context, queue storage.SyncQueueStore) (int, error) {
	ops := m.PendingOperations()

	for _, op := range ops {
		payload, err := json.Marshal(api.FromOperation(op))
		if err != nil {
			return 0, storage.SerializationError("stage_pending", op.Key, err)
		}

		rec := storage.SyncRecord{
			ID:         op.ID,
			Key:        op.Key,
			Payload:    payload,
			EnqueuedAt: op.Time(),
		}
		if err := queue.EnqueueSync(ctx, rec); err != nil {
			return 0, fmt.Errorf("failed to stage operation %s: %w", op.ID, err)
		}
	}
	return len(ops), nil
}

// Acknowledge removes operations delivered by a transport from both the sync
// queue and the pending list
func (m *Manager) Acknowledge(ctx context.Context, queue storage.SyncQueueStore, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := queue.AckSync(ctx, ids...); err != nil {
		return fmt.Errorf("failed to ack sync queue: %w", err)
	}

	acked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		acked[id] = struct{}{}
	}
	if _, err := m.RemovePendingOperationsMatching(ctx, func(op protocol.Operation) bool {
		_, ok := acked[op.ID]
		return ok
	}); err != nil {
		return err
	}
	return nil
}
