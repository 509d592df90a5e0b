package harness

import "github.com/roach88/intercall/internal/app"

// TraceEvent is one task result observed by a listener.
type TraceEvent struct {
	Lane  string      `json:"lane"`
	Key   string      `json:"key"`
	Data  any         `json:"data,omitempty"`
	Error *TraceError `json:"error,omitempty"`
}

// TraceError is the failure half of a TraceEvent.
type TraceError struct {
	Kind    string `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func traceErrorOf(e *app.ActionError) *TraceError {
	if e == nil {
		return nil
	}
	return &TraceError{Kind: string(e.Kind), Code: e.Code, Message: e.Message}
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every keyed result, grouped by lane.
	Trace []TraceEvent `json:"trace"`

	// Errors describes each failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// laneEvents returns the events of lane in completion order.
func (r *Result) laneEvents(lane string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Lane == lane {
			out = append(out, ev)
		}
	}
	return out
}
