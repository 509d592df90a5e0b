package queue

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/meta"
)

const testInnerCookie = "inner-secret"

// newEchoApp serves the a-base queue endpoints used by the dispatch
// tests. echo answers the request body; whoami answers the subdomain.
func newEchoApp(t *testing.T, reg *meta.Registry) *app.App {
	t.Helper()
	r := app.NewRouter()
	r.Post("/api/a/base/queue/echo", func(c *app.CallContext) error {
		c.Success(c.RequestBody())
		return nil
	}, app.Inner())
	r.Post("/api/a/base/queue/slow", func(c *app.CallContext) error {
		c.Success(map[string]any{"subdomain": c.Subdomain()})
		return nil
	}, app.Inner())
	r.Post("/api/a/base/queue/fail", func(c *app.CallContext) error {
		c.Fail(7, "nope")
		return nil
	}, app.Inner())

	a := app.New(app.WithModules(reg), app.WithLogger(discardLogger()))
	a.Use(app.InnerAccess(testInnerCookie), r.Middleware())
	return a
}

func TestLocalDispatcher_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := newTestRegistry(t)
	c := NewClient(reg, NewLocalDispatcher(newEchoApp(t, reg)), WithLogger(discardLogger()))
	res := collect(c, Key{Subdomain: "t1", Module: "a-base", QueueName: "echo", Key: "k1"})

	require.NoError(t, c.Publish(Task{
		Subdomain: "t1",
		Module:    "a-base",
		QueueName: "echo",
		Key:       "k1",
		Data:      map[string]any{"ok": true},
	}))

	r := receive(t, res)
	require.Nil(t, r.Err)
	assert.Equal(t, map[string]any{"ok": true}, r.Data)
	drain(t, c)
}

func TestLocalDispatcher_Subdomain(t *testing.T) {
	reg := newTestRegistry(t)
	d := NewLocalDispatcher(newEchoApp(t, reg))
	cfg, ok := reg.Queue("a-base", "slow")
	require.True(t, ok)

	data, err := d.Dispatch(context.Background(), Task{Subdomain: "tenant-x", Module: "a-base", QueueName: "slow"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"subdomain": "tenant-x"}, data)
}

func TestLocalDispatcher_Failures(t *testing.T) {
	reg := newTestRegistry(t)
	d := NewLocalDispatcher(newEchoApp(t, reg))

	cfg, _ := reg.Queue("a-base", "fail")
	_, err := d.Dispatch(context.Background(), Task{Module: "a-base", QueueName: "fail"}, cfg)
	require.Error(t, err)
	assert.True(t, app.IsDomainError(err))
	assert.Equal(t, 7, app.AsActionError(err).Code)

	cfg, _ = reg.Queue("a-base", "missing")
	_, err = d.Dispatch(context.Background(), Task{Module: "a-base", QueueName: "missing"}, cfg)
	require.Error(t, err)
	assert.Equal(t, 404, app.AsActionError(err).Code)

	_, err = d.Dispatch(context.Background(), Task{Module: "bad", QueueName: "x"}, meta.QueueConfig{Path: "rel"})
	assert.True(t, app.IsResolutionError(err))
}

func startServer(t *testing.T, h http.Handler) (string, int) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestHTTPDispatcher_RoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	host, port := startServer(t, newEchoApp(t, reg))

	c := NewClient(reg, NewHTTPDispatcher(host, port, testInnerCookie), WithLogger(discardLogger()))
	echo := collect(c, Key{Subdomain: "t2", Module: "a-base", QueueName: "echo", Key: "k"})
	who := collect(c, Key{Subdomain: "t2", Module: "a-base", QueueName: "slow", Key: "k"})

	require.NoError(t, c.Publish(Task{Subdomain: "t2", Module: "a-base", QueueName: "echo", Key: "k", Data: map[string]any{"ok": true}}))
	require.NoError(t, c.Publish(Task{Subdomain: "t2", Module: "a-base", QueueName: "slow", Key: "k"}))

	r := receive(t, echo)
	require.Nil(t, r.Err)
	assert.Equal(t, map[string]any{"ok": true}, r.Data)

	r = receive(t, who)
	require.Nil(t, r.Err)
	assert.Equal(t, map[string]any{"subdomain": "t2"}, r.Data)

	drain(t, c)
}

func TestHTTPDispatcher_DomainFailure(t *testing.T) {
	reg := newTestRegistry(t)
	host, port := startServer(t, newEchoApp(t, reg))
	d := NewHTTPDispatcher(host, port, testInnerCookie)

	cfg, _ := reg.Queue("a-base", "fail")
	_, err := d.Dispatch(context.Background(), Task{Module: "a-base", QueueName: "fail"}, cfg)
	require.Error(t, err)
	ae := app.AsActionError(err)
	assert.Equal(t, app.KindDomain, ae.Kind)
	assert.Equal(t, app.Envelope{Code: 7, Message: "nope"}, ae.Envelope())
}

func TestHTTPDispatcher_TransportFailures(t *testing.T) {
	reg := newTestRegistry(t)
	host, port := startServer(t, newEchoApp(t, reg))

	// Wrong credential: the inner route refuses.
	d := NewHTTPDispatcher(host, port, "wrong")
	cfg, _ := reg.Queue("a-base", "echo")
	_, err := d.Dispatch(context.Background(), Task{Module: "a-base", QueueName: "echo"}, cfg)
	ae := app.AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, app.KindTransport, ae.Kind)
	assert.Equal(t, http.StatusForbidden, ae.Code)
	assert.Equal(t, "inner access only", ae.Message)

	// No route.
	d = NewHTTPDispatcher(host, port, testInnerCookie)
	cfg, _ = reg.Queue("a-base", "missing")
	_, err = d.Dispatch(context.Background(), Task{Module: "a-base", QueueName: "missing"}, cfg)
	ae = app.AsActionError(err)
	assert.Equal(t, http.StatusNotFound, ae.Code)
	assert.Equal(t, "Not Found", ae.Message)
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: assert.AnError}
}

type cannedDoer struct {
	status int
	body   string
}

func (d cannedDoer) Do(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: d.status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(d.body)),
	}, nil
}

func TestHTTPDispatcher_NonOKEnvelopeIsKept(t *testing.T) {
	cfg := meta.QueueConfig{Path: "queue/echo"}
	task := Task{Module: "a-base", QueueName: "echo"}

	d := NewHTTPDispatcher("127.0.0.1", 1, testInnerCookie,
		WithDoer(cannedDoer{status: 503, body: `{"code":42,"message":"busy","data":{"retry":1}}`}))
	_, err := d.Dispatch(context.Background(), task, cfg)
	ae := app.AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, app.KindTransport, ae.Kind)
	assert.Equal(t, app.Envelope{Code: 42, Message: "busy", Data: map[string]any{"retry": float64(1)}}, ae.Envelope())

	d = NewHTTPDispatcher("127.0.0.1", 1, testInnerCookie,
		WithDoer(cannedDoer{status: 502, body: "bad gateway\n"}))
	_, err = d.Dispatch(context.Background(), task, cfg)
	ae = app.AsActionError(err)
	require.NotNil(t, ae)
	assert.Equal(t, 502, ae.Code)
	assert.Equal(t, "bad gateway", ae.Message)
	assert.Nil(t, ae.Data)
}

func TestHTTPDispatcher_ConnectionError(t *testing.T) {
	d := NewHTTPDispatcher("127.0.0.1", 1, testInnerCookie, WithDoer(failingDoer{}))
	_, err := d.Dispatch(context.Background(), Task{Module: "a-base", QueueName: "echo"}, meta.QueueConfig{Path: "queue/echo"})
	require.Error(t, err)

	ae := app.AsActionError(err)
	assert.Equal(t, app.KindTransport, ae.Kind)
	assert.Equal(t, 500, ae.Code)
	assert.Contains(t, ae.Message, "http://127.0.0.1:1/api/a/base/queue/echo")
}
