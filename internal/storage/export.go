package storage

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/validation"
)

// Export envelope format identifiers
const (
	ExportFormat  = "storysync.document"
	ExportVersion = 1
)

const envelopeSchemaURL = "https://storysync.local/schema/envelope.json"

//go:embed envelope.schema.json
var envelopeSchemaJSON []byte

var envelopeSchema = mustCompileEnvelopeSchema()

// Envelope is the self-describing export format of a single document.
type Envelope struct {
	Format     string           `json:"format"`
	Version    int              `json:"version"`
	ID         string           `json:"id,omitempty"`
	Metadata   *models.Metadata `json:"metadata,omitempty"`
	Document   models.Document  `json:"document"`
	ExportedAt time.Time        `json:"exported_at"`
}

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(envelopeSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid envelope schema: %v", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("failed to add envelope schema: %v", err))
	}

	sch, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("failed to compile envelope schema: %v", err))
	}
	return sch
}

// EncodeEnvelope builds the export bytes for key.
func EncodeEnvelope(key string, doc models.Document, meta *models.Metadata, exportedAt time.Time) ([]byte, error) {
	env := Envelope{
		Format:     ExportFormat,
		Version:    ExportVersion,
		ID:         key,
		Metadata:   meta,
		Document:   doc,
		ExportedAt: exportedAt.UTC().Truncate(time.Millisecond),
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, SerializationError("export", key, err)
	}
	return data, nil
}

// DecodeEnvelope validates data against the envelope schema and decodes it.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, SerializationError("import", "", fmt.Errorf("malformed JSON: %w", err))
	}
	if err := envelopeSchema.Validate(inst); err != nil {
		return nil, SerializationError("import", "", fmt.Errorf("invalid envelope: %w", err))
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, SerializationError("import", "", err)
	}
	return &env, nil
}

// ExportDocument loads key from b and encodes it as an envelope.
func ExportDocument(ctx context.Context, b Backend, key string) ([]byte, error) {
	doc, err := b.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	meta, err := b.GetMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(key, doc, meta, Now())
}

// ImportDocument decodes an envelope and saves it into b.
// A missing id is replaced with a fresh UUID.
func ImportDocument(ctx context.Context, b Backend, data []byte) (string, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return "", err
	}

	key := env.ID
	if key == "" {
		key = uuid.NewString()
	}
	if err := validation.ValidateInternalKey(key); err != nil {
		return "", InvalidKey("import", key, err)
	}

	var meta *models.Metadata
	if env.Metadata != nil {
		meta = &models.Metadata{ID: key, Title: env.Metadata.Title, Tags: env.Metadata.Tags}
	}

	if _, err := b.Save(ctx, key, env.Document, meta); err != nil {
		return "", err
	}
	return key, nil
}
