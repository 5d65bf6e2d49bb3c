package codec

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://wabuilder.dev/schemas/flow.json"

//go:embed flow.schema.json
var flowSchemaJSON []byte

// ErrSchema is returned when a document does not match the flow JSON Schema.
var ErrSchema = errors.New("flow document does not match schema")

// Validator checks raw documents against the flow JSON Schema.
// It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded flow schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(flowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal flow schema: %w", err)
	}
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add flow schema resource: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile flow schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate checks a JSON document, or a YAML one when name has a YAML extension.
// Both flow documents and chatbot export files are accepted.
func (v *Validator) Validate(name string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyDocument
	}
	if IsYAML(name) {
		converted, err := yamlToJSON(data)
		if err != nil {
			return err
		}
		data = converted
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrSchema, verr.Error())
		}
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
