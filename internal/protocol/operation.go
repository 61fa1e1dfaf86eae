// Package protocol holds the pure multi-device sync logic: operations, conflict
// detection and resolution, deltas between snapshots and version vectors.
// Nothing here performs I/O.
package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/storysync/internal/models"
)

// OperationType is the kind of change an operation carries
type OperationType string

const (
	OpCreate         OperationType = "create"
	OpUpdate         OperationType = "update"
	OpDelete         OperationType = "delete"
	OpMetadataUpdate OperationType = "metadata_update"
)

// Valid reports whether t is a known operation type
func (t OperationType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete, OpMetadataUpdate:
		return true
	}
	return false
}

// ParseOperationType parses the wire name of an operation type
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown operation type %q", s)
	}
	return t, nil
}

// Operation is one change to one document. Operations are values and are
// not modified after construction; use Clone before changing a copy.
type Operation struct {
	Data      models.Document `json:"data"`
	Metadata  map[string]any  `json:"metadata"`
	ID        string          `json:"id"`
	Type      OperationType   `json:"type"`
	Key       string          `json:"story_id"`
	DeviceID  string          `json:"device_id"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// NewOperation builds an operation with a random id and a timestamp from clock.
// data and meta are copied.
func NewOperation(typ OperationType, key string, data models.Document, meta map[string]any, deviceID string, clock Clock) Operation {
	if meta == nil {
		meta = map[string]any{}
	}
	return Operation{
		ID:        uuid.New().String(),
		Type:      typ,
		Key:       key,
		Data:      data.Clone(),
		Metadata:  models.CloneValue(meta).(map[string]any),
		Timestamp: clock.Now(),
		DeviceID:  deviceID,
	}
}

// Clone returns a deep copy of o
func (o Operation) Clone() Operation {
	clone := o
	clone.Data = o.Data.Clone()
	if o.Metadata != nil {
		clone.Metadata = models.CloneValue(o.Metadata).(map[string]any)
	}
	return clone
}

// Time returns the timestamp as time.Time
func (o Operation) Time() time.Time {
	return time.UnixMilli(o.Timestamp).UTC()
}

// IsNewerThan reports whether o happened strictly after other
func (o Operation) IsNewerThan(other Operation) bool {
	return o.Timestamp > other.Timestamp
}
