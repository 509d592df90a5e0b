package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/builtin"
	"github.com/roach88/intercall/internal/meta"
	"github.com/roach88/intercall/internal/queue"
	"github.com/roach88/intercall/internal/store"
)

// DrainTimeout bounds how long Run waits for the queue to go idle.
const DrainTimeout = 10 * time.Second

// Harness hosts one scenario run.
type Harness struct {
	store    *store.Store
	registry *meta.Registry
	app      *app.App
	client   *queue.Client
	logger   *slog.Logger

	mu    sync.Mutex
	lanes map[string][]TraceEvent
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes app and queue logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes s against a fresh database and returns the result. The
// error is non-nil only when the run itself could not happen; failed
// expectations are reported in the result.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	dir, err := os.MkdirTemp("", "intercall-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		registry: meta.NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		lanes:    make(map[string][]TraceEvent),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.setup(s); err != nil {
		return nil, err
	}
	return h.run(s)
}

func (h *Harness) setup(s *Scenario) error {
	if err := builtin.AddTo(h.registry); err != nil {
		return fmt.Errorf("register builtin module: %w", err)
	}

	h.app = app.New(
		app.WithModules(h.registry),
		app.WithDriver(h.store),
		app.WithLogger(h.logger),
	)
	h.client = queue.NewClient(h.registry, queue.NewLocalDispatcher(h.app), queue.WithLogger(h.logger))

	r := app.NewRouter()
	for _, q := range s.Queues {
		if _, err := h.registry.Add(q.Module, meta.QueueConfig{Name: q.Name, Path: q.QueuePath()}); err != nil {
			return fmt.Errorf("register queue %s:%s: %w", q.Module, q.Name, err)
		}
		if q.Behavior == "" {
			continue
		}
		route, err := meta.MockURL(q.Module, q.QueuePath())
		if err != nil {
			return fmt.Errorf("queue %s:%s: %w", q.Module, q.Name, err)
		}
		r.Post(route, behaviorHandler(q), app.Inner())
	}
	builtin.New(builtin.WithPublisher(h.client)).Mount(r)
	h.app.Use(r.Middleware())
	return nil
}

func (h *Harness) run(s *Scenario) (*Result, error) {
	result := NewResult()

	// Per full key, the expectations in publish order.
	expects := make(map[string][]*Expect)
	subscribed := make(map[string]bool)
	for _, p := range s.Publish {
		if p.Key == "" {
			continue
		}
		key := p.queueKey()
		expects[key.Full()] = append(expects[key.Full()], p.Expect)
		if !subscribed[key.Full()] {
			subscribed[key.Full()] = true
			h.client.Subscribe(key, h.record(key))
		}
	}

	for i, p := range s.Publish {
		t := queue.Task{
			Subdomain: p.Subdomain,
			Module:    p.Module,
			QueueName: p.Queue,
			Key:       p.Key,
			Data:      p.Data,
		}
		if err := h.client.Publish(t); err != nil {
			return nil, fmt.Errorf("publish[%d]: %w", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()
	if err := h.client.Drain(ctx); err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}
	h.client.Close()

	result.Trace = h.trace()
	checkExpectations(result, expects)
	for i, a := range s.Assertions {
		if err := h.checkAssertion(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

func (p PublishStep) queueKey() queue.Key {
	return queue.Key{Subdomain: p.Subdomain, Module: p.Module, QueueName: p.Queue, Key: p.Key}
}

// record returns the listener appending key's results to its lane.
func (h *Harness) record(key queue.Key) queue.Listener {
	lane := key.Lane()
	return func(r queue.Result) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.lanes[lane] = append(h.lanes[lane], TraceEvent{
			Lane:  lane,
			Key:   key.Key,
			Data:  r.Data,
			Error: traceErrorOf(r.Err),
		})
	}
}

// trace flattens the recorded lanes, sorted by lane name.
func (h *Harness) trace() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.lanes))
	for name := range h.lanes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []TraceEvent{}
	for _, name := range names {
		out = append(out, h.lanes[name]...)
	}
	return out
}

func behaviorHandler(q QueueSpec) app.Handler {
	return func(c *app.CallContext) error {
		if q.DelayMS > 0 {
			time.Sleep(time.Duration(q.DelayMS) * time.Millisecond)
		}
		switch q.Behavior {
		case BehaviorFail:
			c.Fail(q.Code, q.Message)
		case BehaviorError:
			return app.Errorf(q.Code, "%s", q.Message)
		case BehaviorPanic:
			panic(q.Message)
		default:
			c.Success(c.RequestBody())
		}
		return nil
	}
}
