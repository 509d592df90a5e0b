package app

import (
	"fmt"
	"strconv"
	"strings"
)

// GetVal looks a value up in the route params, then the query, then the
// request body. Returns nil when none has it.
func (c *CallContext) GetVal(name string) any {
	if v, ok := c.params[name]; ok && v != "" {
		return v
	}
	if v := c.query.Get(name); v != "" {
		return v
	}
	return bodyField(c.reqBody, name)
}

// GetInt returns the named value as an int.
func (c *CallContext) GetInt(name string) (int, error) {
	switch v := c.GetVal(name).(type) {
	case nil:
		return 0, fmt.Errorf("%s: missing", name)
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(v)))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	}
}

// GetFloat returns the named value as a float64.
func (c *CallContext) GetFloat(name string) (float64, error) {
	switch v := c.GetVal(name).(type) {
	case nil:
		return 0, fmt.Errorf("%s: missing", name)
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return f, nil
	}
}

// GetStr returns the named value as a string, or "" when missing.
func (c *CallContext) GetStr(name string) string {
	switch v := c.GetVal(name).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// GetSafeStr returns GetStr with single quotes doubled.
func (c *CallContext) GetSafeStr(name string) string {
	return strings.ReplaceAll(c.GetStr(name), "'", "''")
}

// Success sets a code 0 envelope carrying data.
func (c *CallContext) Success(data any) {
	c.SetBody(Envelope{Code: 0, Data: data})
}

// Fail sets an envelope carrying a domain failure. The status stays 200:
// domain failures are not transport failures.
func (c *CallContext) Fail(code int, message string) {
	c.SetBody(Envelope{Code: code, Message: message})
}

// Page is the payload of SuccessMore.
type Page struct {
	List     []any `json:"list"`
	Index    int   `json:"index"`
	Finished bool  `json:"finished"`
}

// SuccessMore answers one page of a paged listing. index is the offset of
// the page and size the requested page size; a short page is the last.
func (c *CallContext) SuccessMore(list []any, index, size int) {
	c.Success(Page{List: list, Index: index + len(list), Finished: len(list) < size})
}

func bodyField(body any, name string) any {
	switch b := body.(type) {
	case nil:
		return nil
	case map[string]any:
		return b[name]
	case map[string]string:
		if v, ok := b[name]; ok {
			return v
		}
		return nil
	}
	var m map[string]any
	if err := DecodeData(body, &m); err != nil {
		return nil
	}
	return m[name]
}
