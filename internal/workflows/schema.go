package workflows

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchema wraps field-level violations found while checking the
// definitions file against its JSON schema
var ErrSchema = errors.New("definitions schema violation")

// documentSchema constrains the decoded definitions file before typed
// unmarshalling, so a malformed file fails with field paths instead of
// silently zero-valued structs
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["workflows"],
  "additionalProperties": false,
  "properties": {
    "workflows": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "steps"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "intents": {
            "type": "array",
            "items": {"type": "string", "minLength": 1}
          },
          "initial_step": {"type": "string"},
          "steps": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "scripts": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["step", "source"],
              "additionalProperties": false,
              "properties": {
                "step": {"type": "string", "minLength": 1},
                "source": {"type": "string", "minLength": 1}
              }
            }
          }
        }
      }
    }
  }
}`

// validateSchema checks a decoded YAML document against documentSchema.
// The document is round-tripped through JSON because the schema engine
// only understands JSON values
func validateSchema(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, len(res.Errors()))
	for i, desc := range res.Errors() {
		msgs[i] = fmt.Sprintf("%s: %s", desc.Field(), desc.Description())
	}
	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
}
