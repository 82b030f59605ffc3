// SPDX-License-Identifier: Apache-2.0

package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedevinc/target-postgres/pkg/project"
)

func testColumns(t *testing.T) *project.ColumnSet {
	t.Helper()
	cols, err := project.FlattenSchema(map[string]any{
		"properties": map[string]any{
			"id":   map[string]any{"type": "integer"},
			"name": map[string]any{"type": "string"},
		},
	})
	require.NoError(t, err)
	return cols
}

func TestBatchBufferAppendAndClose(t *testing.T) {
	buf, err := NewBatchBuffer(testColumns(t))
	require.NoError(t, err)

	require.NoError(t, buf.Append(map[string]any{"id": float64(1), "name": "ann"}))
	require.NoError(t, buf.Append(map[string]any{"id": float64(2)}))
	assert.Equal(t, 2, buf.Len())

	require.NoError(t, buf.Close())
}

func TestBatchBufferTracksFingerprints(t *testing.T) {
	buf, err := NewBatchBuffer(testColumns(t))
	require.NoError(t, err)
	defer buf.Close()

	assert.False(t, buf.HasFingerprint("1"))
	buf.MarkFingerprint("1")
	assert.True(t, buf.HasFingerprint("1"))
}

func TestBatchBufferRewindReadsRowsBack(t *testing.T) {
	buf, err := NewBatchBuffer(testColumns(t))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Append(map[string]any{"id": float64(1), "name": "ann"}))
	require.NoError(t, buf.rewind())

	info, err := buf.file.Stat()
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
