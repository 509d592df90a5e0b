package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/intercall/internal/meta"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *meta.Registry {
	t.Helper()
	reg := meta.NewRegistry()
	_, err := reg.Add("a-base")
	require.NoError(t, err)
	_, err = reg.Add("test-party")
	require.NoError(t, err)
	return reg
}

// newTestApp creates an app whose pipeline is the given middleware.
func newTestApp(t *testing.T, mw ...Middleware) *App {
	t.Helper()
	a := New(WithModules(newTestRegistry(t)), WithLogger(discardLogger()))
	a.Use(mw...)
	return a
}

// callerOf returns an anonymous context addressed at module a-base.
func callerOf(a *App) *CallContext {
	return a.AnonymousContext(context.Background(), "GET", "/api/a/base/caller")
}

// handle is a middleware that answers every request with h.
func handle(h Handler) Middleware {
	return func(c *CallContext, next func() error) error {
		return h(c)
	}
}
