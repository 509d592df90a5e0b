package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/securecookie"

	"github.com/roach88/intercall/internal/meta"
	"github.com/roach88/intercall/internal/txn"
)

// ModuleResolver resolves a module relative name ("a-base") to its
// registration. Implemented by meta.Registry.
type ModuleResolver interface {
	Module(relativeName string) (*meta.Module, bool)
}

// App is the host of module endpoints: a middleware stack plus the shared
// collaborators every CallContext reaches through it.
//
// Thread-safety: configure the App (New, Use) before serving. After that
// ServeHTTP, AnonymousContext and PerformAction are safe for concurrent
// use.
type App struct {
	middleware []Middleware
	modules    ModuleResolver
	driver     txn.Driver
	logger     *slog.Logger

	cookieKeys   [][]byte
	cookieCodecs []securecookie.Codec

	maxBodyBytes int64
}

// DefaultMaxBodyBytes bounds JSON request bodies of real requests.
const DefaultMaxBodyBytes = 1 << 20

// Option configures an App.
type Option func(*App)

// WithModules sets the module registry used to resolve relative URLs.
func WithModules(r ModuleResolver) Option {
	return func(a *App) {
		a.modules = r
	}
}

// WithDriver sets the database driver behind CallContext.DB.
func WithDriver(d txn.Driver) Option {
	return func(a *App) {
		a.driver = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithCookieKeys sets the keys signed cookies are signed and verified
// with, newest first.
func WithCookieKeys(keys ...[]byte) Option {
	return func(a *App) {
		a.cookieKeys = keys
	}
}

// WithMaxBodyBytes bounds JSON request bodies of real requests.
func WithMaxBodyBytes(n int64) Option {
	return func(a *App) {
		a.maxBodyBytes = n
	}
}

// New creates an App with no middleware.
func New(opts ...Option) *App {
	a := &App{
		logger:       slog.Default(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cookieCodecs = newCookieCodecs(a.cookieKeys)
	return a
}

// Use appends middleware to the stack.
func (a *App) Use(mw ...Middleware) {
	a.middleware = append(a.middleware, mw...)
}

// Callback composes the current middleware stack.
func (a *App) Callback() Pipeline {
	return Compose(a.middleware...)
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// ServeHTTP runs a real request through the pipeline.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := a.newContext(r, w)
	if err := c.readBody(a.maxBodyBytes); err != nil {
		a.onError(c, err)
		a.finish(c)
		return
	}
	a.run(c)
}

// AnonymousContext creates a context that is not tied to a real request.
// Background jobs use it as the caller of PerformAction.
func (a *App) AnonymousContext(ctx context.Context, method, target string) *CallContext {
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, nil)
	if err != nil {
		a.logger.Warn("anonymous context target rejected, using /",
			"method", method,
			"target", target,
			"error", err)
		req, _ = http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	}
	req.RemoteAddr = "127.0.0.1:0"
	req.Host = "127.0.0.1"
	return a.newContext(req, NewResponse())
}

// run executes the pipeline, the error hook if it failed, and the respond
// step. It returns the pipeline error.
func (a *App) run(c *CallContext) error {
	err := a.Callback()(c)
	if err != nil {
		a.onError(c, err)
	}
	a.finish(c)
	return err
}

func (a *App) finish(c *CallContext) {
	if err := c.respond(); err != nil {
		a.logger.Error("respond failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err)
	}
}

// onError is the error hook of the pipeline: the error's code becomes the
// status when it is a valid HTTP error status (500 otherwise) and its
// message becomes a plain-text body.
func (a *App) onError(c *CallContext, err error) {
	status := errorCode(err)
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}

	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	a.logger.Log(c.Context(), level, "pipeline error",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"error", err)

	if c.bypass {
		return
	}
	h := c.res.Header()
	for k := range h {
		delete(h, k)
	}
	c.status = status
	c.explicitStatus = true
	c.body = errorMessage(err)
	h.Set("Content-Type", contentTypeText)
}

func errorMessage(err error) string {
	var ae *ActionError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	msg := ae.Message
	if msg == "" {
		msg = http.StatusText(ae.Code)
	}
	// Keep context added by wrappers, e.g. "item 2: " + inner message.
	if outer := err.Error(); outer != ae.Error() {
		if prefix, ok := strings.CutSuffix(outer, ae.Error()); ok {
			return prefix + msg
		}
		return outer
	}
	return msg
}

// readBody decodes a JSON request body into the context.
func (c *CallContext) readBody(limit int64) error {
	if c.req.Body == nil || c.req.Body == http.NoBody {
		return nil
	}
	mt, _, _ := mime.ParseMediaType(c.req.Header.Get("Content-Type"))
	if mt != "application/json" {
		return nil
	}
	var v any
	dec := json.NewDecoder(io.LimitReader(c.req.Body, limit))
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return Errorf(http.StatusBadRequest, "invalid json body: %v", err)
	}
	c.reqBody = v
	return nil
}
