package builtin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/meta"
	"github.com/roach88/intercall/internal/queue"
	"github.com/roach88/intercall/internal/store"
)

// ModuleName is the relative name of the built-in module.
const ModuleName = "a-base"

// Domain failure codes carried in response envelopes.
const (
	CodeInvalidInput = 1001
	CodeKeyNotFound  = 1002
	CodeNoDatabase   = 1003
)

// Queues are the queues the module serves.
var Queues = []meta.QueueConfig{
	{Name: "echo", Path: "queue/echo"},
}

// Publisher publishes queue tasks. Implemented by queue.Client.
type Publisher interface {
	Publish(t queue.Task) error
}

// Module serves the a-base routes.
type Module struct {
	publisher Publisher
}

// Option configures a Module.
type Option func(*Module)

// WithPublisher enables queue/publish.
func WithPublisher(p Publisher) Option {
	return func(m *Module) {
		m.publisher = p
	}
}

// New creates the module.
func New(opts ...Option) *Module {
	m := &Module{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddTo registers the module and its queues in reg.
func AddTo(reg *meta.Registry) error {
	_, err := reg.Add(ModuleName, Queues...)
	return err
}

// Mount adds the module routes to r.
func (m *Module) Mount(r *app.Router) {
	r.Post(route("kv/set"), m.set, app.Transaction())
	r.Post(route("kv/get"), m.get)
	r.Post(route("kv/setMany"), m.setMany, app.Transaction())
	r.Post(route("kv/delete"), m.delete, app.Transaction())
	r.Post(route("queue/echo"), m.echo, app.Inner())
	r.Post(route("queue/publish"), m.publish)
}

func route(path string) string {
	u, err := meta.MockURL(ModuleName, path)
	if err != nil {
		panic(err)
	}
	return u
}

// Item is one key/value pair.
type Item struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (m *Module) set(c *app.CallContext) error {
	var in Item
	if err := c.Bind(&in); err != nil {
		return err
	}
	if in.Key == "" {
		c.Fail(CodeInvalidInput, "key is required")
		return nil
	}
	db := c.DB()
	if db == nil {
		c.Fail(CodeNoDatabase, "no database configured")
		return nil
	}
	if err := store.PutValue(c.Context(), db, ModuleName, in.Key, in.Value); err != nil {
		return err
	}
	c.Success(in)
	return nil
}

func (m *Module) get(c *app.CallContext) error {
	key := c.GetStr("key")
	if key == "" {
		c.Fail(CodeInvalidInput, "key is required")
		return nil
	}
	db := c.DB()
	if db == nil {
		c.Fail(CodeNoDatabase, "no database configured")
		return nil
	}
	value, err := store.GetValue(c.Context(), db, ModuleName, key)
	if errors.Is(err, store.ErrNotFound) {
		c.Fail(CodeKeyNotFound, fmt.Sprintf("key %q not found", key))
		return nil
	}
	if err != nil {
		return err
	}
	c.Success(Item{Key: key, Value: value})
	return nil
}

// setMany writes every item through a nested kv/set call. The nested
// calls join this route's transaction, so any failure rolls back all
// items.
func (m *Module) setMany(c *app.CallContext) error {
	var in struct {
		Items []Item `json:"items"`
	}
	if err := c.Bind(&in); err != nil {
		return err
	}
	for i, item := range in.Items {
		if _, err := c.PerformAction(c.Context(), app.Action{
			Method: http.MethodPost,
			URL:    "kv/set",
			Body:   item,
		}); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	c.Success(map[string]any{"count": len(in.Items)})
	return nil
}

func (m *Module) delete(c *app.CallContext) error {
	key := c.GetStr("key")
	if key == "" {
		c.Fail(CodeInvalidInput, "key is required")
		return nil
	}
	db := c.DB()
	if db == nil {
		c.Fail(CodeNoDatabase, "no database configured")
		return nil
	}
	if err := store.DeleteValue(c.Context(), db, ModuleName, key); err != nil {
		return err
	}
	c.Success(nil)
	return nil
}

func (m *Module) echo(c *app.CallContext) error {
	c.Success(c.RequestBody())
	return nil
}

func (m *Module) publish(c *app.CallContext) error {
	if m.publisher == nil {
		return app.Errorf(http.StatusServiceUnavailable, "queue not available")
	}
	var in struct {
		Module    string `json:"module"`
		QueueName string `json:"queueName"`
		Key       string `json:"key"`
		Data      any    `json:"data"`
	}
	if err := c.Bind(&in); err != nil {
		return err
	}
	if in.QueueName == "" {
		c.Fail(CodeInvalidInput, "queueName is required")
		return nil
	}
	if in.Module == "" {
		in.Module = ModuleName
	}
	err := m.publisher.Publish(queue.Task{
		Subdomain: c.Subdomain(),
		Module:    in.Module,
		QueueName: in.QueueName,
		Key:       in.Key,
		Data:      in.Data,
	})
	if err != nil {
		return app.Errorf(http.StatusServiceUnavailable, "publish: %v", err)
	}
	c.Success(nil)
	return nil
}
