package txn

import (
	"context"
	"database/sql"
)

// Querier is the set of transactional data operations.
// Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is a connection holding an open transaction. *sql.Tx satisfies it.
type Conn interface {
	Querier
	Commit() error
	Rollback() error
}

// Driver is the pooled database driver the proxy wraps.
type Driver interface {
	Querier

	// Begin opens a transaction on a dedicated connection.
	Begin(ctx context.Context) (Conn, error)

	// Ping and Stats are direct operations; they never join a transaction.
	Ping(ctx context.Context) error
	Stats() sql.DBStats
}

// Row is the result of QueryRowContext through the proxy.
// *sql.Row satisfies it.
type Row interface {
	Scan(dest ...any) error
	Err() error
}

// errRow is returned by QueryRowContext when the connection could not be
// acquired.
type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }
func (r errRow) Err() error        { return r.err }
