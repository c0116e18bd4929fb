package http

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// batchMintSchema constrains a batch mint request body before any
// per-entry semantics run. Amount bounds per pool are enforced by the
// engine; the schema only guards shape.
var batchMintSchema = []byte(`{
  "type": "object",
  "required": ["recipients"],
  "properties": {
    "recipients": {
      "type": "array",
      "minItems": 1,
      "maxItems": 100,
      "items": {
        "type": "object",
        "required": ["to", "amount"],
        "properties": {
          "to": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
          "amount": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`)

// validateSchema checks a raw JSON body against a schema and returns the
// first violation as a human-readable message.
func validateSchema(schema, document []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("invalid request body: %s", result.Errors()[0].String())
	}
	return nil
}

// decodeValidated validates raw against the schema, then unmarshals it.
func decodeValidated(schema, raw []byte, out interface{}) error {
	if err := validateSchema(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
