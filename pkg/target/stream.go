// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"fmt"

	"github.com/cubedevinc/target-postgres/internal/jsonschema"
	"github.com/cubedevinc/target-postgres/pkg/db"
	"github.com/cubedevinc/target-postgres/pkg/project"
)

// Stream owns one tap stream's registered schema, projected columns, and
// in-flight batch from the moment its SCHEMA message arrives.
type Stream struct {
	Name           string
	SchemaName     string
	Columns        *project.ColumnSet
	PrimaryColumns []string

	validator *jsonschema.Validator
	buffer    *BatchBuffer
	batchSize int
	merger    *Merger
	logger    Logger
}

// NewStream projects a stream's declared schema, compiles its validator,
// and ensures its target table exists before any record arrives.
func NewStream(
	ctx context.Context,
	name string,
	schema map[string]any,
	keyProperties []string,
	batchSize int,
	database db.DB,
	schemaName string,
	logger Logger,
) (*Stream, error) {
	columns, err := project.FlattenSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("projecting schema for stream %q: %w", name, err)
	}

	validator, err := jsonschema.Compile(name, schema)
	if err != nil {
		return nil, err
	}

	buffer, err := NewBatchBuffer(columns)
	if err != nil {
		return nil, err
	}

	st := &Stream{
		Name:           name,
		SchemaName:     schemaName,
		Columns:        columns,
		PrimaryColumns: project.PrimaryColumnNames(keyProperties),
		validator:      validator,
		buffer:         buffer,
		batchSize:      batchSize,
		merger:         NewMerger(database, logger),
		logger:         logger,
	}

	tableManager := NewTableManager(database, schemaName, logger)
	if err := tableManager.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := tableManager.EnsureTable(ctx, st); err != nil {
		return nil, err
	}

	return st, nil
}

// RowCount returns the number of rows buffered for the current, unflushed
// batch.
func (s *Stream) RowCount() int {
	return s.buffer.Len()
}

// AppendRecord validates, projects, and buffers one record, flushing the
// current batch first if the record's primary key already appeared in it.
func (s *Stream) AppendRecord(ctx context.Context, record map[string]any) error {
	if err := s.validator.Validate(record); err != nil {
		return fmt.Errorf("record failed schema validation for stream %q: %w", s.Name, err)
	}

	if len(record) == 0 {
		s.logger.Warn("skipping empty record", "stream", s.Name)
		return nil
	}

	flat := project.FlattenRecord(record)
	fp, hasKey := project.Fingerprint(flat, s.PrimaryColumns)

	if hasKey && s.buffer.HasFingerprint(fp) {
		s.logger.Info("duplicate primary key in batch, flushing early",
			"stream", s.Name, "rows", s.buffer.Len())
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}

	if err := s.buffer.Append(flat); err != nil {
		return err
	}
	if hasKey {
		s.buffer.MarkFingerprint(fp)
	}

	if s.buffer.Len() >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush merges the current batch into the target table and replaces it
// with a fresh, empty one. A no-op if the current batch is empty.
func (s *Stream) Flush(ctx context.Context) error {
	if s.buffer.Len() == 0 {
		return nil
	}

	old := s.buffer
	fresh, err := NewBatchBuffer(s.Columns)
	if err != nil {
		return err
	}
	s.buffer = fresh

	s.logger.Info("flushing batch", "stream", s.Name, "rows", old.Len())
	return s.merger.Merge(ctx, s, old)
}
