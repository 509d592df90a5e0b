package queue

import (
	"context"
	"errors"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/meta"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue client closed")

// Key addresses subscriptions. Subdomain, Module and QueueName identify a
// lane; Key correlates one task's result.
type Key struct {
	Subdomain string
	Module    string
	QueueName string
	Key       string
}

// Lane returns "subdomain:module:queueName".
func (k Key) Lane() string {
	return k.Subdomain + ":" + k.Module + ":" + k.QueueName
}

// Full returns "subdomain:module:queueName:key".
func (k Key) Full() string {
	return k.Lane() + ":" + k.Key
}

// Task is one unit of queued work.
type Task struct {
	Subdomain string
	Module    string
	QueueName string
	Key       string
	Data      any

	// Seq is stamped by Publish and increases across all lanes.
	Seq int64
}

// QueueKey returns the task's subscription key.
func (t Task) QueueKey() Key {
	return Key{Subdomain: t.Subdomain, Module: t.Module, QueueName: t.QueueName, Key: t.Key}
}

// Result is what listeners receive: Data on success, Err on failure,
// never both.
type Result struct {
	Data any
	Err  *app.ActionError
}

// Listener receives task results. It runs on the lane's worker goroutine;
// the lane does not advance until it returns.
type Listener func(Result)

// Registry resolves "module:queueName" to the queue's configuration.
// Implemented by meta.Registry.
type Registry interface {
	Queue(module, queueName string) (meta.QueueConfig, bool)
}

// Dispatcher executes one task against its queue's endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, t Task, cfg meta.QueueConfig) (any, error)
}
