package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/intercall/internal/txn"
)

// ErrNotFound is returned by GetValue when the key does not exist.
var ErrNotFound = errors.New("not found")

// Execer is satisfied by Store, *sql.Tx and txn.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RowQuerier is satisfied by txn.DB.
type RowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) txn.Row
}

// PutValue inserts or replaces a module-scoped value.
func PutValue(ctx context.Context, db Execer, module, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (module, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(module, key) DO UPDATE SET value = excluded.value
	`, module, key, value)
	if err != nil {
		return fmt.Errorf("put value: %w", err)
	}
	return nil
}

// GetValue reads a module-scoped value. Returns ErrNotFound if missing.
func GetValue(ctx context.Context, db RowQuerier, module, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `
		SELECT value FROM kv WHERE module = ? AND key = ?
	`, module, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get value: %w", err)
	}
	return value, nil
}

// DeleteValue removes a module-scoped value. Deleting a missing key is not
// an error.
func DeleteValue(ctx context.Context, db Execer, module, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE module = ? AND key = ?`, module, key); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}
