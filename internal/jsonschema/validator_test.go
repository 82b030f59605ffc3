// SPDX-License-Identifier: Apache-2.0

package jsonschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedevinc/target-postgres/internal/jsonschema"
)

func TestValidate(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":   map[string]any{"type": "integer"},
			"name": map[string]any{"type": "string"},
		},
		"required": []any{"id"},
	}

	v, err := jsonschema.Compile("users", schema)
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"id": float64(1), "name": "ann"}))
	assert.Error(t, v.Validate(map[string]any{"name": "ann"}))
}

func TestCompileRejectsInvalidSchema(t *testing.T) {
	schema := map[string]any{
		"type": "nonsense",
	}

	_, err := jsonschema.Compile("bad", schema)
	assert.Error(t, err)
}
