// SPDX-License-Identifier: Apache-2.0

// Package jsonschema compiles a tap-declared stream schema once and
// validates that stream's records against it.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator holds one stream's compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile compiles a stream's declared schema. Draft 4 is assumed when the
// schema doesn't name its own $schema, matching the tap/target protocol's
// historical default.
func Compile(stream string, schema map[string]any) (*Validator, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema for stream %q: %w", stream, err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding schema for stream %q: %w", stream, err)
	}

	url := "mem://" + stream + ".schema.json"
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft4)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("loading schema for stream %q: %w", stream, err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for stream %q: %w", stream, err)
	}

	return &Validator{schema: compiled}, nil
}

// Validate checks a decoded record against the compiled schema.
func (v *Validator) Validate(record map[string]any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}

	return v.schema.Validate(inst)
}
