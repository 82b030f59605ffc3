// SPDX-License-Identifier: Apache-2.0

// Package driver reads a tap's line-delimited SCHEMA/RECORD/STATE/
// ACTIVATE_VERSION stream and drives each registered stream's buffering and
// merging through pkg/target.
package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cubedevinc/target-postgres/pkg/config"
	"github.com/cubedevinc/target-postgres/pkg/db"
	"github.com/cubedevinc/target-postgres/pkg/target"
)

// maxLineSize bounds a single input line, generous enough for records with
// large nested payloads without letting a malformed stream exhaust memory.
const maxLineSize = 64 * 1024 * 1024

// Driver dispatches one tap/target JSON message stream to the target
// streams it registers along the way.
type Driver struct {
	db     db.DB
	config *config.Config
	logger target.Logger

	streams map[string]*target.Stream
	order   []string

	pendingState json.RawMessage
}

// New builds a Driver writing through database using cfg's schema and
// batch size settings.
func New(database db.DB, cfg *config.Config, logger target.Logger) *Driver {
	return &Driver{
		db:      database,
		config:  cfg,
		logger:  logger,
		streams: map[string]*target.Stream{},
	}
}

// Run reads messages from r until EOF, dispatching each, then flushes every
// stream with a non-empty batch and emits the last STATE value seen to w,
// unless a RECORD arrived after it (in which case nothing is written).
func (d *Driver) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := sanitizeLine(scanner.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}

		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return fmt.Errorf("parsing message: %w", err)
		}

		if err := d.dispatch(ctx, msg); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return d.drain(ctx, w)
}

// sanitizeLine strips the literal six-character escape sequence backslash-u-0000 as it
// appears in the raw line text, which Postgres text and jsonb columns
// reject outright once decoded.
func sanitizeLine(line string) string {
	return strings.ReplaceAll(line, `\u0000`, "")
}

func (d *Driver) dispatch(ctx context.Context, msg map[string]any) error {
	msgType, ok := msg["type"].(string)
	if !ok {
		return fmt.Errorf("%w: type", ErrMissingField)
	}

	switch msgType {
	case "SCHEMA":
		return d.handleSchema(ctx, msg)
	case "RECORD":
		return d.handleRecord(ctx, msg)
	case "STATE":
		value, ok := msg["value"]
		if !ok {
			return fmt.Errorf("%w: value", ErrMissingField)
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding STATE value: %w", err)
		}
		d.pendingState = raw
		return nil
	case "ACTIVATE_VERSION":
		stream, _ := msg["stream"].(string)
		d.logger.Info("ACTIVATE_VERSION received, no-op", "stream", stream)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessageType, msgType)
	}
}

func (d *Driver) handleSchema(ctx context.Context, msg map[string]any) error {
	stream, ok := msg["stream"].(string)
	if !ok || stream == "" {
		return fmt.Errorf("%w: stream", ErrMissingField)
	}

	if _, exists := d.streams[stream]; exists {
		d.logger.Warn("ignoring duplicate SCHEMA for stream", "stream", stream)
		return nil
	}

	schemaVal, _ := msg["schema"].(map[string]any)

	keyPropsRaw, ok := msg["key_properties"].([]any)
	if !ok {
		return fmt.Errorf("%w: key_properties", ErrMissingField)
	}
	keyProperties := make([]string, len(keyPropsRaw))
	for i, v := range keyPropsRaw {
		keyProperties[i], _ = v.(string)
	}

	st, err := target.NewStream(ctx, stream, schemaVal, keyProperties, d.config.BatchSize, d.db, d.config.Schema, d.logger)
	if err != nil {
		return err
	}

	d.streams[stream] = st
	d.order = append(d.order, stream)
	d.logger.Info("stream registered", "stream", stream, "columns", len(st.Columns.Columns))
	return nil
}

func (d *Driver) handleRecord(ctx context.Context, msg map[string]any) error {
	stream, ok := msg["stream"].(string)
	if !ok || stream == "" {
		return fmt.Errorf("%w: stream", ErrMissingField)
	}

	st, ok := d.streams[stream]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotRegistered, stream)
	}

	record, _ := msg["record"].(map[string]any)
	if err := st.AppendRecord(ctx, record); err != nil {
		return err
	}

	d.pendingState = nil
	return nil
}

func (d *Driver) drain(ctx context.Context, w io.Writer) error {
	for _, name := range d.order {
		st := d.streams[name]
		if st.RowCount() == 0 {
			continue
		}
		if err := st.Flush(ctx); err != nil {
			return fmt.Errorf("flushing final batch for stream %q: %w", name, err)
		}
	}

	if d.pendingState == nil {
		return nil
	}

	if _, err := w.Write(append(d.pendingState, '\n')); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}
