package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/meta"
)

// LocalDispatcher runs tasks in memory through the call emulator.
type LocalDispatcher struct {
	app *app.App
}

// NewLocalDispatcher creates a dispatcher emulating calls into a.
func NewLocalDispatcher(a *app.App) *LocalDispatcher {
	return &LocalDispatcher{app: a}
}

// Dispatch performs POST <queue path> from an anonymous context with the
// task data as body and the task subdomain in x-inner-subdomain.
func (d *LocalDispatcher) Dispatch(ctx context.Context, t Task, cfg meta.QueueConfig) (any, error) {
	path, err := meta.CombineAPIPath(t.Module, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", app.ErrInvalidURL, err)
	}
	c := d.app.AnonymousContext(ctx, http.MethodPost, path)
	return c.PerformAction(ctx, app.Action{
		Method:  http.MethodPost,
		URL:     path,
		Headers: http.Header{http.CanonicalHeaderKey(app.HeaderInnerSubdomain): {t.Subdomain}},
		Body:    t.Data,
	})
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPTimeout bounds network dispatches made with the default
// client.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPDispatcher runs tasks as POST requests to the cluster listen
// address.
type HTTPDispatcher struct {
	base   string
	cookie string
	client Doer
}

// HTTPOption configures an HTTPDispatcher.
type HTTPOption func(*HTTPDispatcher)

// WithDoer replaces the HTTP client.
func WithDoer(d Doer) HTTPOption {
	return func(h *HTTPDispatcher) {
		h.client = d
	}
}

// NewHTTPDispatcher creates a dispatcher posting to hostname:port with the
// inner cookie credential.
func NewHTTPDispatcher(hostname string, port int, innerCookie string, opts ...HTTPOption) *HTTPDispatcher {
	h := &HTTPDispatcher{
		base:   "http://" + hostname + ":" + strconv.Itoa(port),
		cookie: innerCookie,
		client: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dispatch posts the task data as JSON and decodes the envelope. Code 0
// returns the envelope data; any other code returns the envelope as a
// domain error. A non-200 status or an undecodable body is a transport
// error; a non-200 envelope keeps its code and data.
func (h *HTTPDispatcher) Dispatch(ctx context.Context, t Task, cfg meta.QueueConfig) (any, error) {
	path, err := meta.CombineFetchPath(t.Module, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", app.ErrInvalidURL, err)
	}

	payload, err := json.Marshal(t.Data)
	if err != nil {
		return nil, fmt.Errorf("encode task data: %w", err)
	}

	url := h.base + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(app.HeaderInnerCookie, h.cookie)
	req.Header.Set(app.HeaderInnerSubdomain, t.Subdomain)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s: %w", url, err)
	}

	var env app.Envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && (env.Code != 0 || env.Message != "") {
			code := env.Code
			if code == 0 {
				code = resp.StatusCode
			}
			return nil, &app.ActionError{Kind: app.KindTransport, Code: code, Message: env.Message, Data: env.Data}
		}
		msg := strings.TrimSpace(string(raw))
		return nil, &app.ActionError{Kind: app.KindTransport, Code: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &app.ActionError{
			Kind:    app.KindTransport,
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("decode envelope: %v", decodeErr),
		}
	}
	if env.Code != 0 {
		return nil, &app.ActionError{Kind: app.KindDomain, Code: env.Code, Message: env.Message, Data: env.Data}
	}
	return env.Data, nil
}
