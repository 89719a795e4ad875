package db

import "context"

// Querier runs statements against a pool or an open snapshot.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Database is the pool-level handle repositories depend on.
type Database interface {
	Querier

	// Snapshot runs fn in a read-only repeatable-read transaction so several
	// SELECTs observe one consistent view.
	Snapshot(ctx context.Context, fn func(q Querier) error) error

	Ping(ctx context.Context) error
	Close() error
}

type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

type Row interface {
	Scan(dest ...interface{}) error
}

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
