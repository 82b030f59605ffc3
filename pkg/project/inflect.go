// SPDX-License-Identifier: Apache-2.0

// Package project turns a tap's declared JSON schema and records into the
// stable set of relational columns and rows the sink writes to Postgres.
package project

import (
	"regexp"
	"strings"
)

const sep = "__"

var (
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	camelBoundary   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// underscore mirrors the Ruby/Python `inflection.underscore` transform:
// camelCase and acronym boundaries become single underscores, hyphens
// become underscores, and the result is lowercased.
func underscore(s string) string {
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToLower(s)
}

// camelize is the inverse of underscore: it upper-cases the first letter of
// the string and of every letter following an underscore, dropping the
// underscores. Used only to build the abbreviation for over-long segments.
func camelize(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		if r == '_' {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteString(strings.ToUpper(string(r)))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripLower removes every lowercase ASCII letter, leaving the capitals (and
// anything else) behind; used to derive a CamelCase abbreviation.
func stripLower(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// replacements is applied, in order, to every inflected word. Each is a
// plain substring replacement (not word-boundary aware); this reproduces
// the original sink's behavior exactly, including its quirk of rewriting
// "from" and "date" wherever they occur inside a larger word.
var replacements = []struct{ from, to string }{
	{"properties", "props"},
	{"timestamp", "ts"},
	{"date", "dt"},
	{"from", "from_col"},
	{"associated", "assoc"},
}

func inflectWord(word string) string {
	w := underscore(word)
	for _, r := range replacements {
		w = strings.ReplaceAll(w, r.from, r.to)
	}
	return w
}

// InflectColumnName converts a raw property or stream name into its
// projected identifier. Embedded whitespace splits the name into segments
// that are inflected independently and rejoined with the same "__"
// separator flattening uses between nested keys, so "test Table" becomes
// "test__table" while the single word "TestTable" becomes "test_table".
func InflectColumnName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = inflectWord(f)
	}
	return strings.Join(parts, sep)
}

// flattenKey builds the projected key for a nested property. Keys that
// would push the concatenated length past 40 characters are replaced by
// their CamelCase abbreviation (the capitalized letters only), falling back
// to the first three characters of the original key when that abbreviation
// is a single character or empty.
func flattenKey(key, parentKey string) string {
	if len(parentKey)+len(key) > 40 {
		reduced := stripLower(camelize(key))
		if len(reduced) > 1 {
			key = reduced
		} else if len(key) > 3 {
			key = key[:3]
		}
	}
	if parentKey == "" {
		return InflectColumnName(key)
	}
	return parentKey + sep + InflectColumnName(key)
}
