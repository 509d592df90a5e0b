package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := newTestApp(t, RequestLogger(logger), handle(func(c *CallContext) error {
		c.Success(nil)
		return nil
	}))
	_, err := callerOf(a).PerformAction(context.Background(), Action{URL: "kv/get"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "path=/api/a/base/kv/get")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "emulated=true")
}

type observation struct {
	method, route string
	status        int
	emulated      bool
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveRequest(method, route string, status int, emulated bool, _ time.Duration) {
	r.seen = append(r.seen, observation{method, route, status, emulated})
}

func TestInstrument(t *testing.T) {
	obs := &recordingObserver{}
	a := newTestApp(t, Instrument(obs), func(c *CallContext, next func() error) error {
		if !strings.HasPrefix(c.Path(), "/api/a/base/") {
			return next()
		}
		if c.Path() == "/api/a/base/bad" {
			return Errorf(422, "bad input")
		}
		c.Success(nil)
		return nil
	})
	caller := callerOf(a)

	_, err := caller.PerformAction(context.Background(), Action{Method: "post", URL: "good"})
	require.NoError(t, err)
	_, err = caller.PerformAction(context.Background(), Action{Method: "post", URL: "bad"})
	require.Error(t, err)
	_, err = caller.PerformAction(context.Background(), Action{Method: "get", URL: "/nobody/here/x"})
	require.Error(t, err)

	assert.Equal(t, []observation{
		{"POST", "a-base", 200, true},
		{"POST", "a-base", 422, true},
		{"GET", "/api/nobody/here/x", 404, true},
	}, obs.seen)
}
