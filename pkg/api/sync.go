// Package api defines the wire types exchanged by sync transports.
package api

import (
	"fmt"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/validation"
)

// Operation представляет одну операцию синхронизации на проводе
type Operation struct {
	Data      map[string]any `json:"data"`      // Документ, null для delete
	Metadata  map[string]any `json:"metadata"`  // Метаданные операции
	ID        string         `json:"id"`        // UUID операции
	Type      string         `json:"type"`      // create, update, delete, metadata_update
	StoryID   string         `json:"story_id"`  // Ключ документа
	DeviceID  string         `json:"device_id"` // Устройство-источник
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
}

// Batch представляет пакет операций одного устройства
type Batch struct {
	VersionVector map[string]int64 `json:"version_vector"` // Знания устройства на момент отправки
	DeviceID      string           `json:"device_id"`
	Operations    []Operation      `json:"operations"`
	Since         int64            `json:"since"` // Метка последней успешной синхронизации
}

// BatchResponse представляет ответ транспорта на пакет
type BatchResponse struct {
	VersionVector    map[string]int64 `json:"version_vector"`
	Operations       []Operation      `json:"operations"`        // Изменения других устройств
	CurrentTimestamp int64            `json:"current_timestamp"` // Текущие часы транспорта
	Conflicts        int              `json:"conflicts"`         // Количество разрешенных конфликтов
}

// FromOperation converts a protocol operation to its wire form
func FromOperation(op protocol.Operation) Operation {
	out := Operation{
		ID:        op.ID,
		Type:      string(op.Type),
		StoryID:   op.Key,
		DeviceID:  op.DeviceID,
		Timestamp: op.Timestamp,
		Metadata:  map[string]any{},
	}
	if op.Data != nil {
		out.Data = map[string]any(op.Data.Clone())
	}
	if op.Metadata != nil {
		out.Metadata = models.CloneValue(op.Metadata).(map[string]any)
	}
	return out
}

// ToOperation validates a wire operation and converts it
func ToOperation(w Operation) (protocol.Operation, error) {
	if w.ID == "" {
		return protocol.Operation{}, fmt.Errorf("operation id is required")
	}

	typ, err := protocol.ParseOperationType(w.Type)
	if err != nil {
		return protocol.Operation{}, err
	}

	if err := validation.ValidateKey(w.StoryID); err != nil {
		return protocol.Operation{}, fmt.Errorf("operation %s: invalid story_id: %w", w.ID, err)
	}

	if (typ == protocol.OpCreate || typ == protocol.OpUpdate) && w.Data == nil {
		return protocol.Operation{}, fmt.Errorf("operation %s: %s requires data", w.ID, typ)
	}

	op := protocol.Operation{
		ID:        w.ID,
		Type:      typ,
		Key:       w.StoryID,
		DeviceID:  w.DeviceID,
		Timestamp: w.Timestamp,
		Metadata:  map[string]any{},
	}
	if w.Data != nil {
		op.Data = models.Document(w.Data).Clone()
	}
	if w.Metadata != nil {
		op.Metadata = models.CloneValue(w.Metadata).(map[string]any)
	}
	return op, nil
}

// NewBatch packs ops with the sender's version vector
func NewBatch(deviceID string, since int64, vv protocol.VersionVector, ops []protocol.Operation) Batch {
	b := Batch{
		DeviceID:      deviceID,
		Since:         since,
		VersionVector: map[string]int64(vv.Clone()),
		Operations:    make([]Operation, 0, len(ops)),
	}
	for _, op := range ops {
		b.Operations = append(b.Operations, FromOperation(op))
	}
	return b
}

// ProtocolOperations converts every operation of the batch. The first
// invalid operation aborts the conversion.
func (b Batch) ProtocolOperations() ([]protocol.Operation, error) {
	out := make([]protocol.Operation, 0, len(b.Operations))
	for i, w := range b.Operations {
		op, err := ToOperation(w)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out = append(out, op)
	}
	return out, nil
}
