// SPDX-License-Identifier: Apache-2.0

package target

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/cubedevinc/target-postgres/pkg/project"
)

// BatchBuffer spools one stream's in-flight batch to a temp file as CSV,
// tracking the primary-key fingerprints seen so far so the caller can
// detect an in-batch duplicate before it's appended.
type BatchBuffer struct {
	schema   *project.ColumnSet
	file     *os.File
	writer   *csv.Writer
	rowCount int
	seen     map[string]struct{}
}

// NewBatchBuffer opens a fresh spool file for a stream's next batch. The
// file name carries a uuid suffix (rather than just the stream name) so
// concurrent runs sharing $TMPDIR never collide on the same path.
func NewBatchBuffer(schema *project.ColumnSet) (*BatchBuffer, error) {
	pattern := fmt.Sprintf("target-postgres-%s-*.csv", uuid.NewString())
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("creating batch spool file: %w", err)
	}

	return &BatchBuffer{
		schema: schema,
		file:   f,
		writer: csv.NewWriter(f),
		seen:   map[string]struct{}{},
	}, nil
}

// HasFingerprint reports whether fp was already appended to this batch.
func (b *BatchBuffer) HasFingerprint(fp string) bool {
	_, ok := b.seen[fp]
	return ok
}

// MarkFingerprint records fp as seen in this batch.
func (b *BatchBuffer) MarkFingerprint(fp string) {
	b.seen[fp] = struct{}{}
}

// Append encodes a flattened record as one CSV row, one field per projected
// column, in the schema's stable column order. A present, truthy value is
// encoded; anything else (absent, null, "", zero, empty collection) writes
// an empty field, per the sink's historical CSV semantics.
func (b *BatchBuffer) Append(flat map[string]any) error {
	row := make([]string, len(b.schema.Columns))
	for i, col := range b.schema.Columns {
		v, ok := flat[col.Name]
		if !ok || !project.IsTruthy(v) {
			continue
		}
		encoded, err := encodeField(v)
		if err != nil {
			return fmt.Errorf("encoding column %q: %w", col.Name, err)
		}
		row[i] = encoded
	}

	if err := b.writer.Write(row); err != nil {
		return fmt.Errorf("writing batch row: %w", err)
	}
	b.writer.Flush()
	if err := b.writer.Error(); err != nil {
		return err
	}

	b.rowCount++
	return nil
}

// encodeField renders a flattened value for its CSV cell. Object and array
// values land on a jsonb column and are JSON-encoded whole; every other
// value lands on a scalar column and is written as its plain text form, not
// JSON-quoted, since COPY hands it straight to a character varying/numeric/
// boolean column with no JSON decoding on the Postgres side.
func encodeField(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Len returns the number of rows appended so far.
func (b *BatchBuffer) Len() int {
	return b.rowCount
}

// rewind flushes any buffered writes and seeks the spool file back to its
// start, ready to be read back for COPY.
func (b *BatchBuffer) rewind() error {
	b.writer.Flush()
	if err := b.writer.Error(); err != nil {
		return err
	}
	_, err := b.file.Seek(0, 0)
	return err
}

// Close removes the spool file. Safe to call once the batch has been
// merged; the buffer must not be used afterward.
func (b *BatchBuffer) Close() error {
	name := b.file.Name()
	if err := b.file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
