package app

import (
	"bytes"
	"net/http"
)

// Response is the in-memory response an emulated call writes to.
type Response struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

var _ http.ResponseWriter = (*Response)(nil)

// NewResponse creates an unwritten response with status 404.
func NewResponse() *Response {
	return &Response{header: make(http.Header), status: http.StatusNotFound}
}

// Header returns the response headers.
func (r *Response) Header() http.Header {
	return r.header
}

// WriteHeader records the status. Only the first call has an effect.
func (r *Response) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
}

// Write appends to the body, implying a 200 header if none was written.
func (r *Response) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(p)
}

// Status returns the recorded status.
func (r *Response) Status() int {
	return r.status
}

// Written reports whether the header was written.
func (r *Response) Written() bool {
	return r.wroteHeader
}

// Bytes returns the written body.
func (r *Response) Bytes() []byte {
	return r.body.Bytes()
}

// String returns the written body as text.
func (r *Response) String() string {
	return r.body.String()
}
