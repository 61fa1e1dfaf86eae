package models

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Document представляет документ истории (story) в виде JSON-подобного дерева.
// Значения ограничены тем, что переживает JSON round-trip:
// string, float64, bool, nil, []any и map[string]any.
// Неизвестные поля сохраняются как есть.
type Document map[string]any

// Well-known document fields used to derive metadata.
const (
	FieldTitle    = "title"
	FieldTags     = "tags"
	FieldMetadata = "_metadata"
	FieldConflict = "_conflict"
)

// NormalizeDocument converts an arbitrary Go value into a Document by a JSON
// round-trip. The value must encode to a JSON object.
func NormalizeDocument(v any) (Document, error) {
	if v == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document must be a JSON object")
	}

	return doc, nil
}

// Normalize returns the normalized form of d.
func (d Document) Normalize() (Document, error) {
	return NormalizeDocument(map[string]any(d))
}

// Marshal encodes the document as JSON.
func (d Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument decodes a JSON object into a Document.
func UnmarshalDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document is null")
	}
	return doc, nil
}

// Size returns the byte length of the JSON encoding.
func (d Document) Size() (int64, error) {
	data, err := d.Marshal()
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Clone создает глубокую копию документа
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return CloneValue(map[string]any(d)).(map[string]any)
}

// Equal reports deep structural equality.
func (d Document) Equal(other Document) bool {
	if d == nil || other == nil {
		return d == nil && other == nil
	}
	return reflect.DeepEqual(map[string]any(d), map[string]any(other))
}

// Title returns the "title" field if it is a string.
func (d Document) Title() string {
	if title, ok := d[FieldTitle].(string); ok {
		return title
	}
	return ""
}

// Tags returns the "tags" field as a string slice, skipping non-string items.
func (d Document) Tags() []string {
	switch raw := d[FieldTags].(type) {
	case []string:
		out := make([]string, len(raw))
		copy(out, raw)
		return out
	case []any:
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// CloneValue deep-copies maps and slices of a JSON-like value.
// Scalars are returned unchanged.
func CloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return Document(CloneValue(map[string]any(val)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return val
	}
}
