// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/cubedevinc/target-postgres/pkg/db"
	"github.com/cubedevinc/target-postgres/pkg/project"
)

// querier is the subset of db.DB (and *sql.Tx) that tableExists/
// evolveColumns need, so both can run either directly against the pool or
// inside the retryable transaction EnsureTable wraps them in.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// TableManager ensures a stream's target schema and table exist, and
// evolves the table's columns as a stream's schema widens.
type TableManager struct {
	db         db.DB
	schemaName string
	logger     Logger
}

// NewTableManager builds a TableManager writing into schemaName.
func NewTableManager(database db.DB, schemaName string, logger Logger) *TableManager {
	return &TableManager{db: database, schemaName: schemaName, logger: logger}
}

// EnsureSchema creates the target schema if it doesn't already exist.
func (tm *TableManager) EnsureSchema(ctx context.Context) error {
	rows, err := tm.db.QueryContext(ctx,
		"SELECT schema_name FROM information_schema.schemata WHERE schema_name = $1", tm.schemaName)
	if err != nil {
		return fmt.Errorf("checking for schema %q: %w", tm.schemaName, err)
	}
	exists := rows.Next()
	if err := rows.Close(); err != nil {
		return err
	}
	if exists {
		return nil
	}

	ddl := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(tm.schemaName))
	if _, err := tm.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating schema %q: %w", tm.schemaName, err)
	}
	tm.logger.Info("schema created", "schema", tm.schemaName, "sql", ddl)
	return nil
}

// EnsureTable creates the stream's target table if it doesn't exist, or
// evolves its columns if it does. The existence check and the subsequent
// CREATE/ALTER statements run as one retryable transaction, so a
// lock_timeout anywhere in the sequence retries the whole thing rather than
// leaving it half-applied.
func (tm *TableManager) EnsureTable(ctx context.Context, st *Stream) error {
	return tm.db.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		exists, err := tm.tableExists(ctx, tx, st.Name)
		if err != nil {
			return err
		}

		if !exists {
			target := project.TableName(tm.schemaName, st.Name, false)
			ddl := project.CreateTableSQL(target, st.Columns, st.PrimaryColumns, false)
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("creating table for stream %q: %w", st.Name, err)
			}
			tm.logger.Info("table created", "stream", st.Name, "table", target, "sql", ddl)
			return nil
		}

		return tm.evolveColumns(ctx, tx, st)
	})
}

func (tm *TableManager) tableExists(ctx context.Context, q querier, stream string) (bool, error) {
	table := project.InflectColumnName(stream)
	rows, err := q.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND lower(table_name) = lower($2)`,
		tm.schemaName, table)
	if err != nil {
		return false, fmt.Errorf("checking for table %q: %w", stream, err)
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// evolveColumns adds any column the stream's projected schema declares but
// the existing table doesn't have. Existing columns are never altered or
// dropped: type narrowing and column removal are out of scope.
func (tm *TableManager) evolveColumns(ctx context.Context, q querier, st *Stream) error {
	table := project.InflectColumnName(st.Name)
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND lower(table_name) = lower($2)`,
		tm.schemaName, table)
	if err != nil {
		return fmt.Errorf("listing columns for stream %q: %w", st.Name, err)
	}

	existing := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		existing[strings.ToLower(name)] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	target := project.TableName(tm.schemaName, st.Name, false)
	for _, col := range st.Columns.Columns {
		if _, ok := existing[strings.ToLower(col.Name)]; ok {
			continue
		}
		ddl := project.AddColumnSQL(target, col.Name, col.Schema)
		if _, err := q.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("adding column %q to stream %q: %w", col.Name, st.Name, err)
		}
		tm.logger.Info("column added", "stream", st.Name, "column", col.Name, "sql", ddl)
	}

	return nil
}
