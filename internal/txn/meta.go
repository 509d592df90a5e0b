package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// BeginError reports that the chain's transaction could not be begun.
// The connection cell stays empty; a later operation retries.
type BeginError struct {
	Err error
}

func (e *BeginError) Error() string {
	return fmt.Sprintf("begin transaction: %v", e.Err)
}

func (e *BeginError) Unwrap() error {
	return e.Err
}

// IsBeginError reports whether err is (or wraps) a BeginError.
func IsBeginError(err error) bool {
	var be *BeginError
	return errors.As(err, &be)
}

// ConnCell holds the connection shared by every participant of one call
// chain. It is filled at most once per transaction.
type ConnCell struct {
	mu   sync.Mutex
	conn Conn
}

// Conn returns the current connection, or nil if none was acquired yet.
func (c *ConnCell) Conn() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// acquire returns the cell's connection, beginning it on d if the cell is
// empty. The lock is held across Begin so concurrent first uses wait for
// the single acquisition instead of racing a second one.
func (c *ConnCell) acquire(ctx context.Context, d Driver) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := d.Begin(ctx)
	if err != nil {
		return nil, &BeginError{Err: err}
	}
	c.conn = conn
	return conn, nil
}

// take empties the cell and returns what it held.
func (c *ConnCell) take() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn := c.conn
	c.conn = nil
	return conn
}

// Meta is the transaction state of one call context.
//
// INVARIANTS:
//   - a participant that inherited a transaction is never master
//   - all participants of a chain share the same *ConnCell
//
// Inherit and Begin are called while the call context is being set up,
// before any data operation runs on it.
type Meta struct {
	master      bool
	transaction bool
	cell        *ConnCell
}

// NewMeta returns the state of a fresh top-level call: master, no
// transaction, empty connection cell.
func NewMeta() *Meta {
	return &Meta{master: true, cell: &ConnCell{}}
}

// Master reports whether this context owns the chain's transaction.
func (m *Meta) Master() bool { return m.master }

// InTransaction reports whether data operations join the chain transaction.
func (m *Meta) InTransaction() bool { return m.transaction }

// Cell returns the connection cell shared by the chain.
func (m *Meta) Cell() *ConnCell { return m.cell }

// Conn returns the chain's connection, or nil before the first operation.
func (m *Meta) Conn() Conn { return m.cell.Conn() }

// Inherit joins the caller's transaction. It has no effect when the
// caller is not in a transaction: the callee keeps its own fresh state.
func (m *Meta) Inherit(parent *Meta) {
	if parent == nil || !parent.transaction {
		return
	}
	m.master = false
	m.transaction = true
	m.cell = parent.cell
}

// Begin marks the chain as transactional. The connection itself is only
// acquired by the first data operation. Returns false when the meta is
// already transactional.
func (m *Meta) Begin() bool {
	if m.transaction {
		return false
	}
	m.transaction = true
	return true
}

// Settle finishes the chain's transaction: rollback when failed, commit
// otherwise. Only the master settles; for participants, and for chains
// that never touched the database, Settle is a no-op.
func (m *Meta) Settle(failed bool) error {
	if !m.master || !m.transaction {
		return nil
	}
	m.transaction = false

	conn := m.cell.take()
	if conn == nil {
		return nil
	}
	if failed {
		if err := conn.Rollback(); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return nil
	}
	if err := conn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
