package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Handler serves one route.
type Handler func(c *CallContext) error

// RouteOption configures a route.
type RouteOption func(*route)

// Transaction runs the route inside the chain's transaction. When the
// context is the chain master it begins the transaction and settles it
// after the handler: rollback if the handler returned an error, commit
// otherwise. A context that joined its caller's transaction leaves
// settling to the master.
func Transaction() RouteOption {
	return func(r *route) {
		r.transaction = true
	}
}

// Inner restricts the route to trusted requests (see InnerAccess).
func Inner() RouteOption {
	return func(r *route) {
		r.inner = true
	}
}

type route struct {
	name        string
	handler     Handler
	transaction bool
	inner       bool
}

// Router matches requests to handlers with gorilla/mux patterns and runs
// the matched handler as a middleware stage.
type Router struct {
	mux    *mux.Router
	routes map[string]*route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{mux: mux.NewRouter(), routes: make(map[string]*route)}
}

// Handle registers h for method and path. The path uses gorilla/mux
// syntax, e.g. "/api/a/base/kv/{key}".
func (r *Router) Handle(method, path string, h Handler, opts ...RouteOption) {
	rt := &route{
		name:    fmt.Sprintf("%s %s#%d", strings.ToUpper(method), path, len(r.routes)),
		handler: h,
	}
	for _, opt := range opts {
		opt(rt)
	}
	r.routes[rt.name] = rt
	r.mux.NewRoute().
		Path(path).
		Methods(strings.ToUpper(method)).
		Name(rt.name).
		Handler(http.NotFoundHandler())
}

// Get registers a GET route.
func (r *Router) Get(path string, h Handler, opts ...RouteOption) {
	r.Handle(http.MethodGet, path, h, opts...)
}

// Post registers a POST route.
func (r *Router) Post(path string, h Handler, opts ...RouteOption) {
	r.Handle(http.MethodPost, path, h, opts...)
}

// Middleware returns the pipeline stage that dispatches to the matched
// route. Unmatched requests fall through to next; a path that matches
// with the wrong method ends with 405.
func (r *Router) Middleware() Middleware {
	return func(c *CallContext, next func() error) error {
		var m mux.RouteMatch
		if !r.mux.Match(c.req, &m) || m.MatchErr != nil {
			if m.MatchErr == mux.ErrMethodMismatch {
				c.SetStatus(http.StatusMethodNotAllowed)
				return nil
			}
			return next()
		}

		rt, ok := r.routes[m.Route.GetName()]
		if !ok {
			return next()
		}
		for k, v := range m.Vars {
			c.params[k] = v
		}
		return rt.serve(c)
	}
}

func (rt *route) serve(c *CallContext) (err error) {
	if rt.inner && !c.SafeAccess() {
		return Errorf(http.StatusForbidden, "inner access only")
	}
	if !rt.transaction {
		return rt.handler(c)
	}

	m := c.DBMeta()
	if !m.Master() || !m.Begin() {
		return rt.handler(c)
	}
	defer func() {
		if serr := m.Settle(err != nil); serr != nil && err == nil {
			err = serr
		}
	}()
	return rt.handler(c)
}
