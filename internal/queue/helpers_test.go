package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/intercall/internal/meta"
)

type dispatchFunc func(ctx context.Context, t Task, cfg meta.QueueConfig) (any, error)

func (f dispatchFunc) Dispatch(ctx context.Context, t Task, cfg meta.QueueConfig) (any, error) {
	return f(ctx, t, cfg)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *meta.Registry {
	t.Helper()
	reg := meta.NewRegistry()
	_, err := reg.Add("a-base",
		meta.QueueConfig{Name: "echo", Path: "queue/echo"},
		meta.QueueConfig{Name: "slow", Path: "queue/slow"},
		meta.QueueConfig{Name: "fail", Path: "queue/fail"},
		meta.QueueConfig{Name: "missing", Path: "queue/missing"},
	)
	require.NoError(t, err)
	return reg
}

// collect subscribes a buffered channel on key.
func collect(c *Client, key Key) <-chan Result {
	ch := make(chan Result, 16)
	c.Subscribe(key, func(r Result) { ch <- r })
	return ch
}

func receive(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func drain(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))
}
