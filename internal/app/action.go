package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Action describes a call to another endpoint.
type Action struct {
	Method string
	URL    string

	// Query, Params and Body replace the callee's when set.
	Query  url.Values
	Params map[string]string
	Body   any

	// Headers are layered over the headers copied from the caller.
	Headers http.Header
}

// PerformAction calls an endpoint in memory. The URL is resolved first:
//
//	"//x" -> "/x"
//	"/x"  -> "/api/x"
//	"x"   -> "/api/<caller module url>/x"
//
// The callee runs the full pipeline with a synthetic request built from
// the caller's, sharing its cookies and transaction. On status 200 with
// an envelope, code 0 returns the envelope data and any other code returns
// a KindDomain *ActionError. Any other outcome returns a KindTransport
// *ActionError carrying the status (or the error's code) and the response
// text (or the error's message).
//
// There is no timeout; ctx is the only way to cancel the callee.
func (c *CallContext) PerformAction(ctx context.Context, a Action) (any, error) {
	target, err := c.adjustURL(a.URL)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, a.Method, target, a.Headers)
	if err != nil {
		return nil, err
	}
	res := NewResponse()

	callee := c.app.newContext(req, res)
	if a.Query != nil {
		callee.query = a.Query
	}
	if a.Params != nil {
		callee.params = a.Params
	}
	if a.Body != nil {
		callee.reqBody = a.Body
	}
	callee.cookies = c.cookies
	callee.multipart = c.multipart
	callee.SetDBMeta(c.dbMeta)
	callee.caller = c
	callee.safeAccess = true
	callee.subdomain = c.subdomain

	if err := c.app.run(callee); err != nil {
		code := errorCode(err)
		if code == 0 {
			code = callee.status
		}
		msg := errorMessage(err)
		if msg == "" {
			msg = res.String()
		}
		return nil, &ActionError{Kind: KindTransport, Code: code, Message: msg}
	}

	if callee.status == http.StatusOK {
		if env, ok := envelopeOf(callee.body); ok {
			if env.Code == 0 {
				return env.Data, nil
			}
			return nil, &ActionError{Kind: KindDomain, Code: env.Code, Message: env.Message, Data: env.Data}
		}
	}
	return nil, &ActionError{Kind: KindTransport, Code: callee.status, Message: res.String()}
}

// adjustURL resolves an action URL to an absolute API path.
func (c *CallContext) adjustURL(u string) (string, error) {
	if strings.HasPrefix(u, "//") {
		return u[1:], nil
	}
	if strings.HasPrefix(u, "/") {
		return "/api" + u, nil
	}
	m := c.Module()
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, u)
	}
	return "/api/" + m.Info.URL + "/" + u, nil
}

// newRequest builds the synthetic request of an emulated call from the
// caller's request.
func (c *CallContext) newRequest(ctx context.Context, method, target string, headers http.Header) (*http.Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, target, err)
	}

	parent := c.req
	req.Header = parent.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, vs := range headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Host = parent.Host
	req.RemoteAddr = parent.RemoteAddr
	req.TLS = parent.TLS
	req.Proto = parent.Proto
	req.ProtoMajor = parent.ProtoMajor
	req.ProtoMinor = parent.ProtoMinor
	req.RequestURI = target
	return req, nil
}
