package syncstate

import (
	"time"

	"github.com/iudanet/storysync/internal/protocol"
)

// Stats accumulates sync activity of the device
type Stats struct {
	TotalSyncs        int64         `json:"total_syncs"`
	LastSyncDuration  time.Duration `json:"last_sync_duration"`
	ConflictsResolved int64         `json:"conflicts_resolved"`
	BytesSent         int64         `json:"bytes_sent"`
	BytesReceived     int64         `json:"bytes_received"`
}

// SyncError is the last sync failure
type SyncError struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// State is the persisted sync state of this device
type State struct {
	CreatedAt         time.Time              `json:"created_at"`
	LastSyncTime      time.Time              `json:"last_sync_time"` // нулевое значение: синхронизаций не было
	LastError         *SyncError             `json:"last_error,omitempty"`
	VersionVector     protocol.VersionVector `json:"version_vector"`
	DeviceID          string                 `json:"device_id"`
	PendingOperations []protocol.Operation   `json:"pending_operations"`
	Stats             Stats                  `json:"stats"`
}

func newState(deviceID string, now time.Time) State {
	return State{
		DeviceID:          deviceID,
		CreatedAt:         now,
		VersionVector:     protocol.VersionVector{},
		PendingOperations: []protocol.Operation{},
	}
}

// Clone returns a deep copy of s
func (s State) Clone() State {
	clone := s
	clone.VersionVector = s.VersionVector.Clone()
	clone.PendingOperations = cloneOperations(s.PendingOperations)
	if s.LastError != nil {
		e := *s.LastError
		clone.LastError = &e
	}
	return clone
}

func cloneOperations(ops []protocol.Operation) []protocol.Operation {
	out := make([]protocol.Operation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}
