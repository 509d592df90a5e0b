package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustURL(t *testing.T) {
	a := newTestApp(t)
	c := callerOf(a)

	tests := []struct {
		in   string
		want string
	}{
		{"kv/get", "/api/a/base/kv/get"},
		{"queue/echo?x=1", "/api/a/base/queue/echo?x=1"},
		{"/test/party/echo", "/api/test/party/echo"},
		{"/x", "/api/x"},
		{"//x", "/x"},
		{"//health/check", "/health/check"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := c.adjustURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdjustURL_RelativeWithoutModule(t *testing.T) {
	a := newTestApp(t)
	c := a.AnonymousContext(context.Background(), "GET", "/")

	_, err := c.adjustURL("kv/get")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidURL)

	// Absolute forms never need the caller's module.
	got, err := c.adjustURL("/a/base/kv/get")
	require.NoError(t, err)
	assert.Equal(t, "/api/a/base/kv/get", got)
}

func TestPerformAction_InvalidURLDispatchesNothing(t *testing.T) {
	called := false
	a := newTestApp(t, handle(func(c *CallContext) error {
		called = true
		return nil
	}))
	c := a.AnonymousContext(context.Background(), "GET", "/")

	_, err := c.PerformAction(context.Background(), Action{Method: "get", URL: "kv/get"})
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
	assert.False(t, called)
	assert.Equal(t, KindResolution, AsActionError(err).Kind)
}

func TestPerformAction_SuccessReturnsData(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		c.Success(map[string]any{"ok": true})
		return nil
	}))

	data, err := callerOf(a).PerformAction(context.Background(), Action{Method: "get", URL: "/api/m/x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, data)
}

func TestPerformAction_DomainFailure(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		c.Fail(5, "x")
		return nil
	}))

	_, err := callerOf(a).PerformAction(context.Background(), Action{Method: "post", URL: "kv/set"})
	require.Error(t, err)
	assert.True(t, IsDomainError(err))

	var ae *ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, Envelope{Code: 5, Message: "x"}, ae.Envelope())
}

func TestPerformAction_DecodedEnvelopeBody(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		c.SetBody(map[string]any{"code": float64(0), "data": "raw"})
		return nil
	}))

	data, err := callerOf(a).PerformAction(context.Background(), Action{URL: "x"})
	require.NoError(t, err)
	assert.Equal(t, "raw", data)
}

func TestPerformAction_NotFound(t *testing.T) {
	a := newTestApp(t)

	_, err := callerOf(a).PerformAction(context.Background(), Action{Method: "get", URL: "missing"})
	require.Error(t, err)
	assert.True(t, IsTransportError(err))

	ae := AsActionError(err)
	assert.Equal(t, http.StatusNotFound, ae.Code)
	assert.Equal(t, "Not Found", ae.Message)
}

func TestPerformAction_NonOKStatusCarriesBody(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		c.SetStatus(http.StatusNotFound)
		c.SetBody("no such thing")
		return nil
	}))

	_, err := callerOf(a).PerformAction(context.Background(), Action{URL: "x"})
	ae := AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, KindTransport, ae.Kind)
	assert.Equal(t, 404, ae.Code)
	assert.Equal(t, "no such thing", ae.Message)
}

func TestPerformAction_PipelineErrorWithCode(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		return Errorf(http.StatusForbidden, "denied")
	}))

	_, err := callerOf(a).PerformAction(context.Background(), Action{URL: "x"})
	ae := AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, KindTransport, ae.Kind)
	assert.Equal(t, 403, ae.Code)
	assert.Equal(t, "denied", ae.Message)
}

func TestPerformAction_PipelineErrorWithoutCode(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		return errors.New("exploded")
	}))

	_, err := callerOf(a).PerformAction(context.Background(), Action{URL: "x"})
	ae := AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, 500, ae.Code, "falls back to the status set by the error hook")
	assert.Equal(t, "exploded", ae.Message)
}

func TestPerformAction_PipelineErrorWithDomainCode(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		return &ActionError{Kind: KindDomain, Code: 1001, Message: "quota"}
	}))

	_, err := callerOf(a).PerformAction(context.Background(), Action{URL: "x"})
	ae := AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, KindTransport, ae.Kind)
	assert.Equal(t, 1001, ae.Code)
	assert.Equal(t, "quota", ae.Message)
}

func TestPerformAction_OKWithoutEnvelope(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		c.SetBody("plain")
		return nil
	}))

	_, err := callerOf(a).PerformAction(context.Background(), Action{URL: "x"})
	ae := AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, KindTransport, ae.Kind)
	assert.Equal(t, 200, ae.Code)
	assert.Equal(t, "plain", ae.Message)
}

func TestPerformAction_BuildsSyntheticRequest(t *testing.T) {
	var seen *CallContext
	a := newTestApp(t, handle(func(c *CallContext) error {
		seen = c
		c.Success(nil)
		return nil
	}))

	ctx := context.Background()
	parent, err := http.NewRequestWithContext(ctx, http.MethodGet, "/api/a/base/caller", nil)
	require.NoError(t, err)
	parent.Host = "tenant.example.com"
	parent.RemoteAddr = "10.0.0.7:5123"
	parent.Header.Set("X-Trace", "t-1")
	parent.Header.Set("X-Override", "old")
	caller := a.newContext(parent, NewResponse())
	caller.SetSubdomain("tenant")

	_, err = caller.PerformAction(ctx, Action{
		Method:  "post",
		URL:     "kv/set",
		Query:   url.Values{"q": {"1"}},
		Params:  map[string]string{"id": "7"},
		Body:    map[string]any{"key": "k"},
		Headers: http.Header{"X-Override": {"new"}},
	})
	require.NoError(t, err)
	require.NotNil(t, seen)

	assert.Equal(t, http.MethodPost, seen.Method())
	assert.Equal(t, "/api/a/base/kv/set", seen.Path())
	assert.Equal(t, "tenant.example.com", seen.Request().Host)
	assert.Equal(t, "10.0.0.7:5123", seen.Request().RemoteAddr)
	assert.Equal(t, "t-1", seen.Header("X-Trace"))
	assert.Equal(t, "new", seen.Header("X-Override"))
	assert.Equal(t, "old", parent.Header.Get("X-Override"), "caller headers are not mutated")
	assert.Equal(t, "1", seen.Query().Get("q"))
	assert.Equal(t, "7", seen.Param("id"))
	assert.Equal(t, "k", seen.GetStr("key"))
	assert.Same(t, caller, seen.Caller())
	assert.True(t, seen.SafeAccess())
	assert.Equal(t, "tenant", seen.Subdomain())
	assert.Same(t, caller.Cookies(), seen.Cookies())
	require.NotNil(t, seen.Module())
	assert.Equal(t, "a-base", seen.Module().Info.RelativeName)
}

func TestPerformAction_NestedCallsShareTransactionMeta(t *testing.T) {
	var metas []any
	a := newTestApp(t)
	a.Use(handle(func(c *CallContext) error {
		metas = append(metas, c.DBMeta().Cell())
		if c.Path() == "/api/a/base/outer" {
			if _, err := c.PerformAction(c.Context(), Action{URL: "inner"}); err != nil {
				return err
			}
		}
		c.Success(nil)
		return nil
	}))

	caller := callerOf(a)
	caller.DBMeta().Begin()

	_, err := caller.PerformAction(context.Background(), Action{URL: "outer"})
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Same(t, caller.DBMeta().Cell(), metas[0])
	assert.Same(t, caller.DBMeta().Cell(), metas[1])
}

func TestPerformAction_CanceledContext(t *testing.T) {
	a := newTestApp(t, handle(func(c *CallContext) error {
		if err := c.Context().Err(); err != nil {
			return err
		}
		c.Success(true)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := callerOf(a).PerformAction(ctx, Action{URL: "x"})
	ae := AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, 500, ae.Code)
	assert.Equal(t, context.Canceled.Error(), ae.Message)
}

func TestAsActionError(t *testing.T) {
	assert.Nil(t, AsActionError(nil))

	ae := AsActionError(errors.New("boom"))
	assert.Equal(t, &ActionError{Kind: KindTransport, Code: 500, Message: "boom"}, ae)

	orig := &ActionError{Kind: KindDomain, Code: 5, Message: "x"}
	assert.Same(t, orig, AsActionError(errors.Join(errors.New("ctx"), orig)))
}
