package autosave

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/iudanet/storysync/internal/crypto"
	"github.com/iudanet/storysync/internal/models"
)

// Canonical returns a canonical JSON encoding of v: object keys sorted,
// strings (keys included) normalized to NFC, no insignificant whitespace,
// no HTML escaping. Two documents that are equal after a JSON round-trip
// encode to identical bytes.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the digest of the canonical encoding of doc
func Fingerprint(doc models.Document) (string, error) {
	data, err := Canonical(doc)
	if err != nil {
		return "", err
	}
	return crypto.Digest(data), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case models.Document:
		return writeObject(buf, val)
	case map[string]any:
		return writeObject(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string:
		return writeString(buf, val)
	case bool, float64, json.Number:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("failed to encode scalar: %w", err)
		}
		buf.Write(data)
	default:
		// Прочие Go-типы сначала приводим к JSON-модели
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("failed to encode %T: %w", val, err)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to decode %T: %w", val, err)
		}
		return writeCanonical(buf, generic)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	// Ключи нормализуются до сортировки: "é" в NFD и NFC один и тот же ключ
	keys := make([]string, 0, len(obj))
	byKey := make(map[string]any, len(obj))
	for k, v := range obj {
		nk := norm.NFC.String(k)
		keys = append(keys, nk)
		byKey[nk] = v
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, byKey[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return fmt.Errorf("failed to encode string: %w", err)
	}
	// Encode добавляет перевод строки
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
