package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/models"
)

func TestNewOperation(t *testing.T) {
	clock := &stepClock{next: 1000, step: 1}
	data := models.Document{"title": "Cave"}

	op := NewOperation(OpUpdate, "cave", data, map[string]any{"reason": "edit"}, "device-a", clock)

	_, err := uuid.Parse(op.ID)
	assert.NoError(t, err)
	assert.Equal(t, OpUpdate, op.Type)
	assert.Equal(t, "cave", op.Key)
	assert.Equal(t, "device-a", op.DeviceID)
	assert.Equal(t, int64(1000), op.Timestamp)

	// Операция не делит данные с вызывающим
	data["title"] = "changed"
	assert.Equal(t, "Cave", op.Data.Title())

	other := NewOperation(OpDelete, "cave", nil, nil, "device-a", clock)
	assert.NotEqual(t, op.ID, other.ID)
	assert.Nil(t, other.Data)
	assert.NotNil(t, other.Metadata)
	assert.True(t, other.IsNewerThan(op))
}

func TestOperation_WireShape(t *testing.T) {
	op := Operation{
		ID:        "op-1",
		Type:      OpCreate,
		Key:       "story-1",
		Data:      models.Document{"title": "A"},
		Metadata:  map[string]any{},
		Timestamp: 42,
		DeviceID:  "dev",
	}

	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":"op-1","type":"create","story_id":"story-1","data":{"title":"A"},"metadata":{},"timestamp":42,"device_id":"dev"}`,
		string(data))
}

func TestOperation_Clone(t *testing.T) {
	op := Operation{Data: models.Document{"n": map[string]any{"x": 1.0}}, Metadata: map[string]any{"k": "v"}}
	clone := op.Clone()

	clone.Data["n"].(map[string]any)["x"] = 2.0
	clone.Metadata["k"] = "changed"

	assert.Equal(t, 1.0, op.Data["n"].(map[string]any)["x"])
	assert.Equal(t, "v", op.Metadata["k"])
}

func TestParseOperationType(t *testing.T) {
	for _, name := range []string{"create", "update", "delete", "metadata_update"} {
		typ, err := ParseOperationType(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(typ))
	}

	_, err := ParseOperationType("rename")
	assert.Error(t, err)
}
