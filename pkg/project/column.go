// SPDX-License-Identifier: Apache-2.0

package project

// typeList normalizes a JSON-Schema "type" keyword, which may be a bare
// string or a list of strings, into a list with "null" filtered out.
func typeList(schema map[string]any) []string {
	raw, ok := schema["type"]
	if !ok {
		return nil
	}
	switch t := raw.(type) {
	case string:
		if t == "null" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			s, ok := v.(string)
			if !ok || s == "null" {
				continue
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

func containsType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// ColumnType resolves a property's JSON-Schema fragment to the Postgres
// column type it is projected onto. object and array always win as jsonb;
// otherwise a date-time formatted string becomes a timestamp, and the
// remaining scalar types resolve by the lattice string > number > integer >
// boolean, so a property declared e.g. ["integer", "string"] (a tap
// widening an originally-integer column) lands on the wider "character
// varying" type.
func ColumnType(schema map[string]any) string {
	types := typeList(schema)

	if containsType(types, "object") || containsType(types, "array") {
		return "jsonb"
	}

	format, _ := schema["format"].(string)
	if format == "date-time" {
		return "timestamp with time zone"
	}

	switch {
	case containsType(types, "string"):
		return "character varying"
	case containsType(types, "number"):
		return "numeric"
	case containsType(types, "integer"):
		return "bigint"
	case containsType(types, "boolean"):
		return "boolean"
	default:
		return "character varying"
	}
}

// IsObjectType reports whether a schema fragment declares an object type,
// the condition under which flattening recurses into its properties
// instead of projecting it as a leaf column.
func IsObjectType(schema map[string]any) bool {
	return containsType(typeList(schema), "object")
}
