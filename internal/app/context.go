package app

import (
	"context"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/roach88/intercall/internal/meta"
	"github.com/roach88/intercall/internal/txn"
)

// CallContext is the execution context of one request, real or emulated.
//
// A CallContext is used by one goroutine at a time: the pipeline runs
// sequentially, and an emulated call blocks its caller until it returns.
type CallContext struct {
	app *App
	req *http.Request
	res http.ResponseWriter

	status         int
	explicitStatus bool
	body           any
	bypass         bool

	query   url.Values
	params  map[string]string
	reqBody any

	cookies   Cookies
	multipart func(maxMemory int64) (*multipart.Form, error)

	dbMeta *txn.Meta
	db     *txn.DB

	caller     *CallContext
	safeAccess bool
	subdomain  string

	module         *meta.Module
	moduleResolved bool
}

func (a *App) newContext(req *http.Request, res http.ResponseWriter) *CallContext {
	c := &CallContext{
		app:    a,
		req:    req,
		res:    res,
		status: http.StatusNotFound,
		query:  req.URL.Query(),
		params: make(map[string]string),
		dbMeta: txn.NewMeta(),
	}
	c.cookies = newCookieJar(req, res, a.cookieKeys, a.cookieCodecs)
	c.multipart = func(maxMemory int64) (*multipart.Form, error) {
		if err := req.ParseMultipartForm(maxMemory); err != nil {
			return nil, err
		}
		return req.MultipartForm, nil
	}
	return c
}

// Context returns the request's context.
func (c *CallContext) Context() context.Context {
	return c.req.Context()
}

// Request returns the underlying request.
func (c *CallContext) Request() *http.Request {
	return c.req
}

// ResponseWriter returns the writer the response is rendered to.
func (c *CallContext) ResponseWriter() http.ResponseWriter {
	return c.res
}

// App returns the application running the pipeline.
func (c *CallContext) App() *App {
	return c.app
}

// Logger returns the application logger.
func (c *CallContext) Logger() *slog.Logger {
	return c.app.logger
}

// Method returns the request method.
func (c *CallContext) Method() string {
	return c.req.Method
}

// Path returns the request path.
func (c *CallContext) Path() string {
	return c.req.URL.Path
}

// Header returns a request header value.
func (c *CallContext) Header(name string) string {
	return c.req.Header.Get(name)
}

// SetHeader sets a response header.
func (c *CallContext) SetHeader(name, value string) {
	c.res.Header().Set(name, value)
}

// Query returns the query parameters.
func (c *CallContext) Query() url.Values {
	return c.query
}

// Params returns the route parameters.
func (c *CallContext) Params() map[string]string {
	return c.params
}

// Param returns one route parameter.
func (c *CallContext) Param(name string) string {
	return c.params[name]
}

// RequestBody returns the decoded request body, or nil.
func (c *CallContext) RequestBody() any {
	return c.reqBody
}

// Status returns the response status. It is 404 until something sets it.
func (c *CallContext) Status() int {
	return c.status
}

// SetStatus sets the response status explicitly.
func (c *CallContext) SetStatus(code int) {
	c.status = code
	c.explicitStatus = true
	if emptyStatus(code) {
		c.body = nil
	}
}

// Body returns the response body.
func (c *CallContext) Body() any {
	return c.body
}

// SetBody sets the response body. Unless a status was set explicitly, a
// non-nil body implies 200 and a nil body implies 204.
func (c *CallContext) SetBody(v any) {
	c.body = v
	if c.explicitStatus {
		return
	}
	if v == nil {
		c.status = http.StatusNoContent
		return
	}
	c.status = http.StatusOK
}

// Bypass makes the respond step leave the response writer alone. Handlers
// that write to ResponseWriter directly call it.
func (c *CallContext) Bypass() {
	c.bypass = true
}

// Cookies returns the cookie jar. Emulated calls share their caller's jar.
func (c *CallContext) Cookies() Cookies {
	return c.cookies
}

// Multipart parses a multipart request body. Emulated calls delegate to
// their caller.
func (c *CallContext) Multipart(maxMemory int64) (*multipart.Form, error) {
	return c.multipart(maxMemory)
}

// DBMeta returns the transaction state of the call chain.
func (c *CallContext) DBMeta() *txn.Meta {
	return c.dbMeta
}

// SetDBMeta joins the transaction of parent, if it is in one.
func (c *CallContext) SetDBMeta(parent *txn.Meta) {
	c.dbMeta.Inherit(parent)
}

// DB returns the data-access facade of this context, creating it on first
// use. Returns nil when the application has no database driver.
func (c *CallContext) DB() *txn.DB {
	if c.db == nil && c.app.driver != nil {
		c.db = txn.NewDB(c.app.driver, c.dbMeta)
	}
	return c.db
}

// Caller returns the context that emulated this call, or nil for a real
// request.
func (c *CallContext) Caller() *CallContext {
	return c.caller
}

// SafeAccess reports whether the request is trusted as coming from inside
// the cluster.
func (c *CallContext) SafeAccess() bool {
	return c.safeAccess
}

// SetSafeAccess marks the request as trusted or not.
func (c *CallContext) SetSafeAccess(v bool) {
	c.safeAccess = v
}

// Subdomain returns the tenant the request runs for.
func (c *CallContext) Subdomain() string {
	return c.subdomain
}

// SetSubdomain sets the tenant the request runs for.
func (c *CallContext) SetSubdomain(s string) {
	c.subdomain = s
}

// Module returns the module the request path addresses, or nil.
func (c *CallContext) Module() *meta.Module {
	if c.moduleResolved {
		return c.module
	}
	c.moduleResolved = true
	if c.app.modules == nil {
		return nil
	}
	if name := meta.ParseName(c.req.URL.Path); name != "" {
		if m, ok := c.app.modules.Module(name); ok {
			c.module = m
		}
	}
	return c.module
}
