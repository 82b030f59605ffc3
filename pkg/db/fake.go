// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"errors"
)

// FakeDB is a fake implementation of `DB` for tests that exercise table
// and schema management without touching a real database. Exec and query
// calls are no-ops; Conn is deliberately unimplemented since nothing can
// stand in for a real dedicated connection, so tests of the merge protocol
// use testcontainers instead.
type FakeDB struct{}

func (db *FakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (db *FakeDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (db *FakeDB) WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	return nil
}

func (db *FakeDB) Conn(ctx context.Context) (*sql.Conn, error) {
	return nil, errors.New("db: FakeDB does not support dedicated connections")
}

func (db *FakeDB) Close() error {
	return nil
}
