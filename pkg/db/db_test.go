// SPDX-License-Identifier: Apache-2.0

package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cubedevinc/target-postgres/pkg/db"
)

func withTestDB(t *testing.T, fn func(conn *sql.DB, connStr string)) {
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

	fn(conn, connStr)
}

func TestExecContextRetriesOnLockTimeout(t *testing.T) {
	t.Parallel()

	withTestDB(t, func(conn *sql.DB, connStr string) {
		ctx := context.Background()
		setupTableLock(t, connStr, 2*time.Second)
		ensureLockTimeout(t, conn, 100)

		rdb := &db.RDB{DB: conn}
		_, err := rdb.ExecContext(ctx, "INSERT INTO test(id) VALUES (1)")
		require.NoError(t, err)
	})
}

func TestExecContextWhenContextCancelled(t *testing.T) {
	t.Parallel()

	withTestDB(t, func(conn *sql.DB, connStr string) {
		ctx, cancel := context.WithCancel(context.Background())
		setupTableLock(t, connStr, 2*time.Second)
		ensureLockTimeout(t, conn, 100)

		rdb := &db.RDB{DB: conn}
		go time.AfterFunc(500*time.Millisecond, cancel)

		_, err := rdb.ExecContext(ctx, "INSERT INTO test(id) VALUES (1)")
		require.Error(t, err)
	})
}

func TestQueryContextRetriesOnLockTimeout(t *testing.T) {
	t.Parallel()

	withTestDB(t, func(conn *sql.DB, connStr string) {
		ctx := context.Background()
		setupTableLock(t, connStr, 2*time.Second)
		ensureLockTimeout(t, conn, 100)

		rdb := &db.RDB{DB: conn}
		rows, err := rdb.QueryContext(ctx, "SELECT COUNT(*) FROM test")
		require.NoError(t, err)

		var count int
		require.NoError(t, db.ScanFirstValue(rows, &count))
		assert.Equal(t, 0, count)
	})
}

func TestWithRetryableTransactionRetriesOnLockTimeout(t *testing.T) {
	t.Parallel()

	withTestDB(t, func(conn *sql.DB, connStr string) {
		ctx := context.Background()
		setupTableLock(t, connStr, 2*time.Second)
		ensureLockTimeout(t, conn, 100)

		rdb := &db.RDB{DB: conn}
		err := rdb.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return tx.QueryRowContext(ctx, "SELECT 1 FROM test").Err()
		})
		require.NoError(t, err)
	})
}

func TestConnReturnsADedicatedConnection(t *testing.T) {
	t.Parallel()

	withTestDB(t, func(conn *sql.DB, connStr string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		c, err := rdb.Conn(ctx)
		require.NoError(t, err)
		defer c.Close()

		_, err = c.ExecContext(ctx, "CREATE TEMP TABLE staging (id int)")
		require.NoError(t, err)

		var count int
		require.NoError(t, c.QueryRowContext(ctx, "SELECT COUNT(*) FROM staging").Scan(&count))
		assert.Equal(t, 0, count)
	})
}

// setupTableLock creates a table and holds an exclusive lock on it for d,
// so callers can exercise the retry loop against a known contention window.
func setupTableLock(t *testing.T, connStr string, d time.Duration) {
	t.Helper()
	ctx := context.Background()

	conn2, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	_, err = conn2.ExecContext(ctx, "CREATE TABLE test (id INT PRIMARY KEY)")
	require.NoError(t, err)

	errCh := make(chan error)
	go func() {
		tx, err := conn2.Begin()
		if err != nil {
			errCh <- err
			return
		}
		if _, err := tx.ExecContext(ctx, "LOCK TABLE test IN ACCESS EXCLUSIVE MODE"); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
		time.Sleep(d)
		tx.Commit()
	}()

	require.NoError(t, <-errCh)
}

func ensureLockTimeout(t *testing.T, conn *sql.DB, ms int) {
	t.Helper()

	_, err := conn.ExecContext(context.Background(), fmt.Sprintf("SET lock_timeout = '%dms'", ms))
	require.NoError(t, err)

	var lockTimeout string
	err = conn.QueryRowContext(context.Background(), "SHOW lock_timeout").Scan(&lockTimeout)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("%dms", ms), lockTimeout)
}
