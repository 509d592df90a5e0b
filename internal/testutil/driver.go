package testutil

import (
	"context"
	"sync"

	"github.com/roach88/intercall/internal/txn"
)

// CountingDriver decorates a txn.Driver, counting Begin calls and keeping
// every connection it handed out so tests can check identity.
type CountingDriver struct {
	txn.Driver

	mu        sync.Mutex
	begins    int
	conns     []txn.Conn
	failures  []error
	beginHook func()
}

// NewCountingDriver wraps d.
func NewCountingDriver(d txn.Driver) *CountingDriver {
	return &CountingDriver{Driver: d}
}

// FailNextBegin makes the next Begin return err without touching the
// wrapped driver. Calls queue up.
func (d *CountingDriver) FailNextBegin(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

// OnBegin installs a hook run inside every Begin before the wrapped driver
// is called. Tests use it to widen race windows.
func (d *CountingDriver) OnBegin(hook func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beginHook = hook
}

// Begin counts the call and delegates.
func (d *CountingDriver) Begin(ctx context.Context) (txn.Conn, error) {
	d.mu.Lock()
	d.begins++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	hook := d.beginHook
	d.mu.Unlock()

	if hook != nil {
		hook()
	}

	conn, err := d.Driver.Begin(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// Begins returns how many times Begin was called, failures included.
func (d *CountingDriver) Begins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.begins
}

// Conns returns the connections handed out so far.
func (d *CountingDriver) Conns() []txn.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]txn.Conn, len(d.conns))
	copy(out, d.conns)
	return out
}
