package app

import "encoding/json"

// Envelope is the response body contract of module endpoints.
// Code 0 is success; any other code is a domain failure.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// envelopeOf recognizes an envelope in a response body. Handlers normally
// set an Envelope, but a decoded JSON object with a numeric "code" counts
// too.
func envelopeOf(body any) (Envelope, bool) {
	switch v := body.(type) {
	case Envelope:
		return v, true
	case *Envelope:
		if v == nil {
			return Envelope{}, false
		}
		return *v, true
	case map[string]any:
		code, ok := intValue(v["code"])
		if !ok {
			return Envelope{}, false
		}
		msg, _ := v["message"].(string)
		return Envelope{Code: code, Message: msg, Data: v["data"]}, true
	}
	return Envelope{}, false
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
