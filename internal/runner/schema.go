package runner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaResource = "response.schema.json"

// validateJSONSchema checks instance against schema. Both are plain Go values
// exported from the script runtime; they are re-encoded so numbers and maps
// have the shapes the validator expects.
func validateJSONSchema(schema, instance any) error {
	schemaData, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
	if err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, doc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(schemaResource)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	instanceData, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	var v any
	if err := json.Unmarshal(instanceData, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return compiled.Validate(v)
}
