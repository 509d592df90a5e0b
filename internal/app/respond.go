package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const (
	contentTypeText   = "text/plain; charset=utf-8"
	contentTypeJSON   = "application/json; charset=utf-8"
	contentTypeBinary = "application/octet-stream"
)

// emptyStatus reports whether responses with this status carry no body.
func emptyStatus(code int) bool {
	switch code {
	case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}

// respond renders the context's status and body to its response writer.
//
// Rules, first match wins:
//   - bypassed: nothing is written
//   - empty-body status (204, 205, 304): header only, body cleared
//   - HEAD: Content-Length of the would-be body, no payload
//   - nil body: status text (or the code) as text/plain
//   - []byte and string: verbatim
//   - io.Reader: copied to completion, closed if it is an io.Closer
//   - anything else: JSON with Content-Length of the encoded bytes
func (c *CallContext) respond() error {
	if c.bypass {
		return nil
	}
	if r, ok := c.res.(*Response); ok && r.Written() {
		return nil
	}

	h := c.res.Header()
	code := c.status

	if emptyStatus(code) {
		c.body = nil
		h.Del("Content-Type")
		h.Del("Content-Length")
		h.Del("Transfer-Encoding")
		c.res.WriteHeader(code)
		return nil
	}

	if c.req.Method == http.MethodHead {
		if n, ok := bodyLength(c.body); ok {
			h.Set("Content-Length", strconv.Itoa(n))
		}
		c.res.WriteHeader(code)
		return nil
	}

	switch body := c.body.(type) {
	case nil:
		text := http.StatusText(code)
		if text == "" {
			text = strconv.Itoa(code)
		}
		return c.write(code, contentTypeText, []byte(text))
	case []byte:
		return c.write(code, contentTypeBinary, body)
	case string:
		return c.write(code, contentTypeText, []byte(body))
	case io.Reader:
		if closer, ok := body.(io.Closer); ok {
			defer closer.Close()
		}
		setDefault(h, "Content-Type", contentTypeBinary)
		c.res.WriteHeader(code)
		if _, err := io.Copy(c.res, body); err != nil {
			return fmt.Errorf("copy body: %w", err)
		}
		return nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		return c.write(code, contentTypeJSON, data)
	}
}

func (c *CallContext) write(code int, contentType string, data []byte) error {
	h := c.res.Header()
	setDefault(h, "Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	c.res.WriteHeader(code)
	if _, err := c.res.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// bodyLength computes the encoded length of a body without writing it.
// Streams have no known length.
func bodyLength(body any) (int, bool) {
	switch b := body.(type) {
	case nil:
		return 0, false
	case []byte:
		return len(b), true
	case string:
		return len(b), true
	case io.Reader:
		return 0, false
	}
	data, err := json.Marshal(body)
	if err != nil {
		return 0, false
	}
	return len(data), true
}

func setDefault(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}
