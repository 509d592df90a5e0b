package app

import (
	"crypto/subtle"
	"net/http"
)

// Headers of calls between modules.
const (
	HeaderInnerCookie    = "x-inner-cookie"
	HeaderInnerSubdomain = "x-inner-subdomain"
)

// InnerAccess trusts requests that come from inside the cluster: emulated
// calls (already marked safe) and network calls presenting cookie in the
// x-inner-cookie header. Trusted requests run for the subdomain named by
// x-inner-subdomain when that header is present. An empty cookie trusts
// emulated calls only.
func InnerAccess(cookie string) Middleware {
	return func(c *CallContext, next func() error) error {
		trusted := c.SafeAccess()
		if !trusted && cookie != "" {
			got := c.req.Header.Get(HeaderInnerCookie)
			trusted = subtle.ConstantTimeCompare([]byte(got), []byte(cookie)) == 1
		}
		if trusted {
			c.safeAccess = true
			if vs, ok := c.req.Header[http.CanonicalHeaderKey(HeaderInnerSubdomain)]; ok && len(vs) > 0 {
				c.subdomain = vs[0]
			}
		}
		return next()
	}
}
