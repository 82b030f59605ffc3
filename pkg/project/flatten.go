// SPDX-License-Identifier: Apache-2.0

package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrSchemaCollision is returned when two distinct schema paths project
// onto the same column name.
var ErrSchemaCollision = errors.New("schema projects two properties onto the same column")

// Column is one projected column: its final identifier and the raw schema
// fragment it was derived from (used to resolve its SQL type).
type Column struct {
	Name   string
	Schema map[string]any
}

// ColumnSet is the stable, name-sorted set of columns a schema projects to.
type ColumnSet struct {
	Columns []Column
}

// Names returns the projected column names in their stable sorted order.
func (cs *ColumnSet) Names() []string {
	names := make([]string, len(cs.Columns))
	for i, c := range cs.Columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether name is a column in the set.
func (cs *ColumnSet) Has(name string) bool {
	for _, c := range cs.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// FlattenSchema walks a declared JSON schema's "properties", projecting
// every leaf (non-object) property to a column named by joining its nested
// path with "__" and inflecting each segment. Columns are returned sorted
// by name; two properties that flatten to the same name are a fatal schema
// error.
func FlattenSchema(schema map[string]any) (*ColumnSet, error) {
	columns, err := flattenSchemaInto(schema, "")
	if err != nil {
		return nil, err
	}

	sort.Slice(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })

	for i := 1; i < len(columns); i++ {
		if columns[i].Name == columns[i-1].Name {
			return nil, fmt.Errorf("%w: %q", ErrSchemaCollision, columns[i].Name)
		}
	}

	return &ColumnSet{Columns: columns}, nil
}

func flattenSchemaInto(schema map[string]any, parentKey string) ([]Column, error) {
	props, _ := schema["properties"].(map[string]any)

	var columns []Column
	for key, raw := range props {
		propSchema, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		name := flattenKey(key, parentKey)

		if IsObjectType(propSchema) {
			nested, err := flattenSchemaInto(propSchema, name)
			if err != nil {
				return nil, err
			}
			columns = append(columns, nested...)
			continue
		}

		columns = append(columns, Column{Name: name, Schema: propSchema})
	}

	return columns, nil
}

// IsTruthy reports whether v is "truthy" in the sense the original sink's
// CSV encoding relied on: nil, the zero value, an empty string, and empty
// collections are all treated as absent.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case map[string]any:
		return len(t) != 0
	case []any:
		return len(t) != 0
	default:
		return true
	}
}

// FlattenRecord walks a record's nested maps, projecting every value to a
// key built the same way FlattenSchema names its columns. Unlike schema
// projection, a nested object's value is emitted both as itself (at its own
// key) and recursively under it, since a record is flattened without regard
// to what the schema declared for that key.
func FlattenRecord(record map[string]any) map[string]any {
	return flattenRecordInto(record, "")
}

func flattenRecordInto(record map[string]any, parentKey string) map[string]any {
	out := map[string]any{}
	for key, value := range record {
		name := flattenKey(key, parentKey)

		nested, ok := value.(map[string]any)
		if !ok {
			out[name] = value
			continue
		}

		out[name] = nested
		for k, v := range flattenRecordInto(nested, name) {
			out[k] = v
		}
	}
	return out
}

// PrimaryColumnNames projects a stream's declared key_properties onto the
// column names they correspond to after inflection.
func PrimaryColumnNames(keyProperties []string) []string {
	names := make([]string, len(keyProperties))
	for i, p := range keyProperties {
		names[i] = InflectColumnName(p)
	}
	return names
}

// Fingerprint builds the per-batch duplicate-detection key for a flattened
// record: the concatenation of its primary column values. It reports false
// when the stream has no primary key, or when any primary column is absent
// or null in this record (in which case the record cannot collide with a
// prior one on key alone).
func Fingerprint(flat map[string]any, primaryColumns []string) (string, bool) {
	if len(primaryColumns) == 0 {
		return "", false
	}

	key := ""
	for i, col := range primaryColumns {
		v, ok := flat[col]
		if !ok || v == nil {
			return "", false
		}
		if i > 0 {
			key += ","
		}
		key += fmt.Sprint(v)
	}
	return key, true
}

// TableName returns the permanent {schema}.{table} identifier for a
// stream, or its unqualified, session-local "_temp" staging counterpart.
func TableName(schemaName, stream string, temporary bool) string {
	table := InflectColumnName(stream)
	if temporary {
		return table + "_temp"
	}
	return schemaName + "." + table
}
