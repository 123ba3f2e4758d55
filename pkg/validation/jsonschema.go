package validation

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateWithSchema validates already-decoded JSON data (maps, slices,
// primitives) against a JSON schema string. An empty schema accepts anything.
func ValidateWithSchema(schemaJSON string, data interface{}) error {
	if schemaJSON == "" {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile JSON schema: %w", err)
	}

	if err := sch.Validate(data); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("data failed validation against schema: %v", validationErr)
		}
		return fmt.Errorf("data failed validation: %w", err)
	}
	return nil
}
