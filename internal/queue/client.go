package queue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/intercall/internal/app"
)

// Metrics receives queue activity. Implemented by observability.Metrics.
type Metrics interface {
	TaskPublished(module, queueName string)
	TaskFinished(module, queueName string, failed bool, d time.Duration)
	LaneStarted()
	LaneStopped()
}

type noopMetrics struct{}

func (noopMetrics) TaskPublished(string, string)                      {}
func (noopMetrics) TaskFinished(string, string, bool, time.Duration) {}
func (noopMetrics) LaneStarted()                                      {}
func (noopMetrics) LaneStopped()                                      {}

// Client is the task queue client.
//
// Thread-safety: all methods are safe for concurrent use. Each non-idle
// lane is owned by one worker goroutine, started by Publish and exiting
// once the lane is empty; idle lanes are dropped from the lane map.
type Client struct {
	registry   Registry
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    Metrics
	clock      *Clock
	ctx        context.Context

	mu        sync.Mutex
	lanes     map[string]*lane
	listeners map[string][]Listener
	closed    bool
	active    int
	idle      chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock sets the clock stamping task sequence numbers.
func WithClock(clock *Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithContext sets the context tasks are dispatched under. Canceling it
// makes in-flight and later dispatches fail; it does not stop lanes.
func WithContext(ctx context.Context) Option {
	return func(c *Client) {
		c.ctx = ctx
	}
}

// NewClient creates a client resolving queues through registry and
// executing tasks through dispatcher.
func NewClient(registry Registry, dispatcher Dispatcher, opts ...Option) *Client {
	c := &Client{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		metrics:    noopMetrics{},
		clock:      NewClock(),
		ctx:        context.Background(),
		lanes:      make(map[string]*lane),
		listeners:  make(map[string][]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers l for results on the full key.
func (c *Client) Subscribe(key Key, l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	full := key.Full()
	c.listeners[full] = append(c.listeners[full], l)
}

// Unsubscribe removes every listener of the full key.
func (c *Client) Unsubscribe(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, key.Full())
}

// Publish appends t to its lane, starting the lane's worker if the lane is
// idle. It never blocks on task execution.
func (c *Client) Publish(t Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	t.Seq = c.clock.Next()
	key := t.QueueKey().Lane()
	l, ok := c.lanes[key]
	if !ok {
		l = newLane(key)
		c.lanes[key] = l
	}
	l.push(t)
	c.metrics.TaskPublished(t.Module, t.QueueName)

	if !l.running {
		l.running = true
		c.laneStartedLocked()
		go c.work(l)
	}
	return nil
}

// Pending returns the number of tasks waiting (not running) in the lane
// of key.
func (c *Client) Pending(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.lanes[key.Lane()]; ok {
		return l.len()
	}
	return 0
}

// Lanes returns the number of lanes with queued or running tasks.
func (c *Client) Lanes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lanes)
}

// Drain blocks until every lane is idle or ctx is done.
func (c *Client) Drain(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.active == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

// Close refuses further publishes. Queued tasks still run; use Drain to
// wait for them.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Client) laneStartedLocked() {
	if c.active == 0 {
		c.idle = make(chan struct{})
	}
	c.active++
	c.metrics.LaneStarted()
}

func (c *Client) laneStoppedLocked() {
	c.active--
	c.metrics.LaneStopped()
	if c.active == 0 {
		close(c.idle)
	}
}

// work runs the lane's tasks in order until the lane is empty.
func (c *Client) work(l *lane) {
	for {
		c.mu.Lock()
		t, ok := l.pop()
		if !ok {
			l.running = false
			delete(c.lanes, l.key)
			c.laneStoppedLocked()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		res := c.perform(t)
		c.emit(t, res)
	}
}

// perform dispatches one task and normalizes every outcome into a Result.
func (c *Client) perform(t Task) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &app.ActionError{
				Kind:    app.KindTransport,
				Code:    http.StatusInternalServerError,
				Message: fmt.Sprintf("task panicked: %v", r),
			}}
		}
		c.metrics.TaskFinished(t.Module, t.QueueName, res.Err != nil, time.Since(start))
		if res.Err != nil {
			c.logger.Warn("queue task failed",
				"lane", t.QueueKey().Lane(),
				"key", t.Key,
				"seq", t.Seq,
				"code", res.Err.Code,
				"error", res.Err.Message)
		}
	}()

	cfg, ok := c.registry.Queue(t.Module, t.QueueName)
	if !ok {
		return Result{Err: &app.ActionError{
			Kind:    app.KindResolution,
			Code:    http.StatusNotFound,
			Message: fmt.Sprintf("queue not found: %s:%s", t.Module, t.QueueName),
		}}
	}

	c.logger.Debug("dispatching queue task",
		"lane", t.QueueKey().Lane(),
		"key", t.Key,
		"seq", t.Seq,
		"path", cfg.Path)

	data, err := c.dispatcher.Dispatch(c.ctx, t, cfg)
	if err != nil {
		return Result{Err: app.AsActionError(err)}
	}
	return Result{Data: data}
}

// emit delivers res to the listeners of the task's full key. Tasks
// without a key deliver nothing.
func (c *Client) emit(t Task, res Result) {
	if t.Key == "" {
		return
	}
	c.mu.Lock()
	ls := c.listeners[t.QueueKey().Full()]
	ls = append([]Listener(nil), ls...)
	c.mu.Unlock()

	for _, l := range ls {
		c.notify(t, l, res)
	}
}

// notify runs one listener. A panicking listener is logged and skipped
// so the lane keeps draining.
func (c *Client) notify(t Task, l Listener, res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("queue listener panicked",
				"lane", t.QueueKey().Lane(),
				"key", t.Key,
				"seq", t.Seq,
				"panic", fmt.Sprint(r))
		}
	}()
	l(res)
}
