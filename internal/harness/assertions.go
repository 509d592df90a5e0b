package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/intercall/internal/builtin"
	"github.com/roach88/intercall/internal/store"
	"github.com/roach88/intercall/internal/txn"
)

// checkExpectations matches each keyed publish step against the result
// delivered for it. Results of one full key arrive in publish order.
func checkExpectations(result *Result, expects map[string][]*Expect) {
	byKey := make(map[string][]TraceEvent)
	for _, ev := range result.Trace {
		full := ev.Lane + ":" + ev.Key
		byKey[full] = append(byKey[full], ev)
	}

	for full, exps := range expects {
		got := byKey[full]
		if len(got) != len(exps) {
			result.AddError(fmt.Sprintf("%s: expected %d results, got %d", full, len(exps), len(got)))
			continue
		}
		for i, exp := range exps {
			if exp == nil {
				continue
			}
			if err := matchExpect(exp, got[i]); err != nil {
				result.AddError(fmt.Sprintf("%s result %d: %v", full, i, err))
			}
		}
	}
}

func matchExpect(exp *Expect, ev TraceEvent) error {
	if exp.Error != nil {
		if ev.Error == nil {
			return fmt.Errorf("expected an error, got data %v", ev.Data)
		}
		if exp.Error.Kind != "" && exp.Error.Kind != ev.Error.Kind {
			return fmt.Errorf("error kind: expected %q, got %q", exp.Error.Kind, ev.Error.Kind)
		}
		if exp.Error.Code != 0 && exp.Error.Code != ev.Error.Code {
			return fmt.Errorf("error code: expected %d, got %d", exp.Error.Code, ev.Error.Code)
		}
		if exp.Error.Message != "" && !strings.Contains(ev.Error.Message, exp.Error.Message) {
			return fmt.Errorf("error message: expected %q in %q", exp.Error.Message, ev.Error.Message)
		}
		return nil
	}

	if ev.Error != nil {
		return fmt.Errorf("unexpected error: %s %d %s", ev.Error.Kind, ev.Error.Code, ev.Error.Message)
	}
	if exp.Data == nil {
		return nil
	}
	want, err := normalize(exp.Data)
	if err != nil {
		return fmt.Errorf("normalize expected data: %w", err)
	}
	got, err := normalize(ev.Data)
	if err != nil {
		return fmt.Errorf("normalize result data: %w", err)
	}
	if !subsetMatch(want, got) {
		return fmt.Errorf("data: expected %v to contain %v", got, want)
	}
	return nil
}

// normalize round-trips v through JSON so values decoded from YAML and
// values produced by handlers compare alike.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// subsetMatch reports whether every field of want is present and equal in
// got. Lists must match element by element.
func subsetMatch(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !subsetMatch(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !subsetMatch(w[i], g[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(want, got)
	}
}

func (h *Harness) checkAssertion(a Assertion, result *Result) error {
	switch a.Type {
	case AssertLaneOrder:
		events := result.laneEvents(a.Lane)
		keys := make([]string, len(events))
		for i, ev := range events {
			keys[i] = ev.Key
		}
		if !reflect.DeepEqual(keys, a.Keys) {
			return fmt.Errorf("lane %s: expected order %v, got %v", a.Lane, a.Keys, keys)
		}
	case AssertResultCount:
		if n := len(result.laneEvents(a.Lane)); n != a.Count {
			return fmt.Errorf("lane %s: expected %d results, got %d", a.Lane, a.Count, n)
		}
	case AssertFinalState:
		db := txn.NewDB(h.store, txn.NewMeta())
		value, err := store.GetValue(context.Background(), db, builtin.ModuleName, a.Key)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("key %q not found", a.Key)
		}
		if err != nil {
			return err
		}
		if value != a.Value {
			return fmt.Errorf("key %q: expected %q, got %q", a.Key, a.Value, value)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
