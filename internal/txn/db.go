package txn

import (
	"context"
	"database/sql"
)

// DB is the per-call data-access facade.
type DB struct {
	driver Driver
	meta   *Meta
}

// NewDB creates the facade for one call context.
func NewDB(d Driver, m *Meta) *DB {
	return &DB{driver: d, meta: m}
}

// Meta returns the transaction state the facade routes by.
func (db *DB) Meta() *Meta {
	return db.meta
}

// querier picks the target of a transactional operation.
func (db *DB) querier(ctx context.Context) (Querier, error) {
	if !db.meta.InTransaction() {
		return db.driver, nil
	}
	return db.meta.cell.acquire(ctx, db.driver)
}

// ExecContext executes a statement on the chain connection or the pool.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := db.querier(ctx)
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the chain connection or the pool.
// Callers are responsible for closing the returned rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := db.querier(ctx)
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query. A failed transaction begin is
// reported by the returned Row's Scan and Err.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	q, err := db.querier(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return q.QueryRowContext(ctx, query, args...)
}

// Ping checks the pooled driver.
func (db *DB) Ping(ctx context.Context) error {
	return db.driver.Ping(ctx)
}

// Stats reports pool statistics of the driver.
func (db *DB) Stats() sql.DBStats {
	return db.driver.Stats()
}
