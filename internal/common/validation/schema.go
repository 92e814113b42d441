// Package validation checks request bodies against JSON schemas. Failures
// are funneled through a single formatting layer that reports the first
// failing field constraint.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema for one request shape.
type Schema struct {
	compiled *gojsonschema.Schema
}

// Compile parses and compiles a schema document.
func Compile(schemaJSON string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// MustCompile is Compile for package-level schema constants.
func MustCompile(schemaJSON string) *Schema {
	s, err := Compile(schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks doc against the schema and returns an error describing the
// first failing field, or nil.
func (s *Schema) Validate(doc map[string]interface{}) error {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	field := first.Field()
	if field == "(root)" {
		if prop, ok := first.Details()["property"].(string); ok {
			field = prop
		}
	}
	return fmt.Errorf("%s: %s", field, first.Description())
}
