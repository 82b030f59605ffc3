// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/lib/pq"

	"github.com/cubedevinc/target-postgres/pkg/db"
	"github.com/cubedevinc/target-postgres/pkg/project"
)

// Merger runs the staging-table protocol that lands one flushed batch into
// a stream's target table: CREATE TEMP TABLE, COPY the batch in, UPDATE
// existing rows from it, INSERT the rest, then DROP the staging table.
// Every step runs inside one transaction on the same dedicated connection
// the staging table was created on, since the table is session-scoped.
type Merger struct {
	db     db.DB
	logger Logger
}

// NewMerger builds a Merger writing through database.
func NewMerger(database db.DB, logger Logger) *Merger {
	return &Merger{db: database, logger: logger}
}

// Merge lands buf's rows into st's target table and closes buf.
func (m *Merger) Merge(ctx context.Context, st *Stream, buf *BatchBuffer) error {
	if buf.Len() == 0 {
		return buf.Close()
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("opening staging connection for stream %q: %w", st.Name, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting staging transaction for stream %q: %w", st.Name, err)
	}
	defer tx.Rollback()

	tempTable := project.TableName(st.SchemaName, st.Name, true)
	targetTable := project.TableName(st.SchemaName, st.Name, false)
	columns := st.Columns.Names()

	createSQL := project.CreateTableSQL(tempTable, st.Columns, nil, true)
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("creating staging table for stream %q: %w", st.Name, err)
	}
	m.logger.Info("staging table created", "stream", st.Name, "table", tempTable, "sql", createSQL)

	if err := m.copyIn(ctx, tx, tempTable, columns, buf); err != nil {
		return fmt.Errorf("copying batch into %q: %w", tempTable, err)
	}
	m.logger.Info("batch copied into staging table", "stream", st.Name, "rows", buf.Len())

	if len(st.PrimaryColumns) > 0 {
		updateSQL := project.UpdateFromTempSQL(targetTable, tempTable, columns, st.PrimaryColumns)
		if _, err := tx.ExecContext(ctx, updateSQL); err != nil {
			return fmt.Errorf("merging updates into %q: %w", targetTable, err)
		}
		m.logger.Info("existing rows updated", "stream", st.Name, "sql", updateSQL)
	}

	insertSQL := project.InsertFromTempSQL(targetTable, tempTable, columns, st.PrimaryColumns)
	if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
		return fmt.Errorf("inserting new rows into %q: %w", targetTable, err)
	}
	m.logger.Info("new rows inserted", "stream", st.Name, "sql", insertSQL)

	dropSQL := project.DropTableSQL(tempTable)
	if _, err := tx.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("dropping staging table %q: %w", tempTable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch for stream %q: %w", st.Name, err)
	}

	return buf.Close()
}

// copyIn streams the spooled batch through a COPY FROM STDIN prepared
// against the staging table. COPY is never retried: a partially-applied
// COPY re-run against the same temp table would double the rows it already
// landed.
func (m *Merger) copyIn(ctx context.Context, tx *sql.Tx, table string, columns []string, buf *BatchBuffer) error {
	if err := buf.rewind(); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("preparing COPY: %w", err)
	}

	reader := csv.NewReader(buf.file)
	reader.FieldsPerRecord = len(columns)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stmt.Close()
			return fmt.Errorf("reading spooled row: %w", err)
		}

		args := make([]any, len(row))
		for i, v := range row {
			if v == "" {
				continue // leave nil: an absent/falsy value is NULL, never the empty string
			}
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			return fmt.Errorf("copying row: %w", err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("finalizing COPY: %w", err)
	}
	return stmt.Close()
}
