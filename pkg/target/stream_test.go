// SPDX-License-Identifier: Apache-2.0

package target_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cubedevinc/target-postgres/pkg/db"
	"github.com/cubedevinc/target-postgres/pkg/target"
)

func withTestDB(t *testing.T) (db.DB, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("target_postgres"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &db.RDB{DB: conn}, conn
}

func TestStreamLifecycleCreatesTableAndMergesBatch(t *testing.T) {
	database, conn := withTestDB(t)
	ctx := context.Background()

	schema := map[string]any{
		"properties": map[string]any{
			"id":   map[string]any{"type": "integer"},
			"name": map[string]any{"type": "string"},
		},
	}

	st, err := target.NewStream(ctx, "users", schema, []string{"id"}, 10, database, "public", target.NewNoopLogger())
	require.NoError(t, err)

	require.NoError(t, st.AppendRecord(ctx, map[string]any{"id": float64(1), "name": "ann"}))
	require.NoError(t, st.AppendRecord(ctx, map[string]any{"id": float64(2), "name": "bo"}))
	require.NoError(t, st.Flush(ctx))

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM public.users").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestStreamDuplicatePrimaryKeyFlushesEarly(t *testing.T) {
	database, conn := withTestDB(t)
	ctx := context.Background()

	schema := map[string]any{
		"properties": map[string]any{
			"id":   map[string]any{"type": "integer"},
			"name": map[string]any{"type": "string"},
		},
	}

	st, err := target.NewStream(ctx, "users", schema, []string{"id"}, 100, database, "public", target.NewNoopLogger())
	require.NoError(t, err)

	require.NoError(t, st.AppendRecord(ctx, map[string]any{"id": float64(1), "name": "first"}))
	require.NoError(t, st.AppendRecord(ctx, map[string]any{"id": float64(1), "name": "second"}))
	require.Equal(t, 1, st.RowCount())
	require.NoError(t, st.Flush(ctx))

	var name string
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT name FROM public.users WHERE id = 1").Scan(&name))
	assert.Equal(t, "second", name)
}
