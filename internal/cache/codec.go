package cache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Codec converts cached values to and from their stored bytes.
type Codec[V any] interface {
	Encode(value V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// SchemaCodec is a JSON codec that validates every payload against a JSON
// schema before decoding it, so stale or foreign payloads never reach the
// caller as a half-filled value.
type SchemaCodec[V any] struct {
	schema *gojsonschema.Schema
}

func NewSchemaCodec[V any](schemaJSON string) (*SchemaCodec[V], error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile cache schema: %w", err)
	}
	return &SchemaCodec[V]{schema: schema}, nil
}

func (c *SchemaCodec[V]) Encode(value V) ([]byte, error) {
	return json.Marshal(value)
}

func (c *SchemaCodec[V]) Decode(data []byte) (V, error) {
	var value V

	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return value, fmt.Errorf("invalid cached payload: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return value, fmt.Errorf("cached payload failed schema validation: %s", strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to decode cached payload: %w", err)
	}
	return value, nil
}

// VehicleStateSchema describes a serialised models.VehicleState.
const VehicleStateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "make", "model", "state", "timestamp"],
	"additionalProperties": false,
	"properties": {
		"id": {"type": "integer", "minimum": 1},
		"make": {"type": "string"},
		"model": {"type": "string"},
		"state": {"type": "string", "minLength": 1},
		"timestamp": {"type": "string", "format": "date-time"}
	}
}`
