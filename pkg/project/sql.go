// SPDX-License-Identifier: Apache-2.0

package project

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// QuoteQualified quotes each dot-separated part of a "schema.table"
// identifier independently, the way a bare pq.QuoteIdentifier cannot.
func QuoteQualified(name string) string {
	parts := strings.SplitN(name, ".", 2)
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = pq.QuoteIdentifier(n)
	}
	return out
}

// CreateTableSQL builds a CREATE [TEMP] TABLE statement from a projected
// column set and optional primary key columns.
func CreateTableSQL(tableName string, columns *ColumnSet, primaryColumns []string, temporary bool) string {
	defs := make([]string, 0, len(columns.Columns)+1)
	for _, c := range columns.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", pq.QuoteIdentifier(c.Name), ColumnType(c.Schema)))
	}
	if len(primaryColumns) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoteAll(primaryColumns), ", ")))
	}

	kind := "TABLE"
	if temporary {
		kind = "TEMP TABLE"
	}

	return fmt.Sprintf("CREATE %s %s (%s)", kind, QuoteQualified(tableName), strings.Join(defs, ", "))
}

// AddColumnSQL builds the ALTER TABLE ... ADD COLUMN statement used to
// evolve an existing table when a stream's schema widens.
func AddColumnSQL(tableName, column string, schema map[string]any) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		QuoteQualified(tableName), pq.QuoteIdentifier(column), ColumnType(schema))
}

// UpdateFromTempSQL builds the UPDATE ... FROM {temp} step of the merge: it
// overwrites every existing row whose primary key matches a row in the
// staging table with that row's column values.
func UpdateFromTempSQL(target, tempTable string, columns, primaryColumns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		q := pq.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("%s = s.%s", q, q)
	}

	conds := make([]string, len(primaryColumns))
	for i, p := range primaryColumns {
		q := pq.QuoteIdentifier(p)
		conds[i] = fmt.Sprintf("s.%s = %s.%s", q, QuoteQualified(target), q)
	}

	return fmt.Sprintf("UPDATE %s SET %s FROM %s s WHERE %s",
		QuoteQualified(target), strings.Join(sets, ", "), pq.QuoteIdentifier(tempTable), strings.Join(conds, " AND "))
}

// InsertFromTempSQL builds the INSERT ... SELECT step of the merge: rows in
// the staging table with no matching primary key in the target are
// inserted via a LEFT OUTER JOIN anti-join. With no primary key declared,
// every staged row is inserted unconditionally (there is nothing to
// de-duplicate against).
func InsertFromTempSQL(target, tempTable string, columns, primaryColumns []string) string {
	cols := strings.Join(quoteAll(columns), ", ")

	if len(primaryColumns) == 0 {
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT s.* FROM %s s",
			QuoteQualified(target), cols, pq.QuoteIdentifier(tempTable))
	}

	joins := make([]string, len(primaryColumns))
	nulls := make([]string, len(primaryColumns))
	for i, p := range primaryColumns {
		q := pq.QuoteIdentifier(p)
		joins[i] = fmt.Sprintf("s.%s = t.%s", q, q)
		nulls[i] = fmt.Sprintf("t.%s IS NULL", q)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT s.* FROM %s s LEFT OUTER JOIN %s t ON %s WHERE %s",
		QuoteQualified(target), cols, pq.QuoteIdentifier(tempTable),
		QuoteQualified(target), strings.Join(joins, " AND "), strings.Join(nulls, " AND "))
}

// DropTableSQL builds the DROP TABLE statement for the unqualified,
// session-local staging table.
func DropTableSQL(tempTable string) string {
	return fmt.Sprintf("DROP TABLE %s", pq.QuoteIdentifier(tempTable))
}
