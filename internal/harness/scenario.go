package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/intercall/internal/meta"
)

// Scenario defines one queue scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Queues declares the queues to register and, for those with a
	// behavior, the endpoint that serves them.
	Queues []QueueSpec `yaml:"queues,omitempty"`

	// Publish lists the tasks to publish, in order.
	Publish []PublishStep `yaml:"publish"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Queue behaviors.
const (
	BehaviorEcho  = "echo"
	BehaviorFail  = "fail"
	BehaviorError = "error"
	BehaviorPanic = "panic"
)

// QueueSpec declares a queue and how its endpoint answers.
type QueueSpec struct {
	Module string `yaml:"module"`
	Name   string `yaml:"name"`

	// Path defaults to "queue/<name>".
	Path string `yaml:"path,omitempty"`

	// Behavior is empty when Path points at an endpoint that already
	// exists.
	Behavior string `yaml:"behavior,omitempty"`

	Code    int    `yaml:"code,omitempty"`
	Message string `yaml:"message,omitempty"`
	DelayMS int    `yaml:"delay_ms,omitempty"`
}

// QueuePath returns the endpoint path relative to the module.
func (q QueueSpec) QueuePath() string {
	if q.Path != "" {
		return q.Path
	}
	return "queue/" + q.Name
}

// PublishStep publishes one task.
type PublishStep struct {
	Subdomain string `yaml:"subdomain"`
	Module    string `yaml:"module"`
	Queue     string `yaml:"queue"`
	Key       string `yaml:"key"`
	Data      any    `yaml:"data,omitempty"`

	// Expect is checked against the result delivered for this step. Steps
	// without a key deliver nothing and cannot carry an expectation.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes an expected task result.
type Expect struct {
	// Data is subset-matched against the result data.
	Data any `yaml:"data,omitempty"`

	Error *ExpectError `yaml:"error,omitempty"`
}

// ExpectError matches a failed result. Zero fields are not checked.
type ExpectError struct {
	Kind    string `yaml:"kind,omitempty"`
	Code    int    `yaml:"code,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the trace or the final key/value state.
type Assertion struct {
	Type string `yaml:"type"`

	// Lane is "subdomain:module:queue" (lane_order, result_count).
	Lane string `yaml:"lane,omitempty"`

	// Keys is the expected completion order of the lane (lane_order).
	Keys []string `yaml:"keys,omitempty"`

	// Count is the expected number of results in the lane (result_count).
	Count int `yaml:"count,omitempty"`

	// Key and Value check the a-base key/value table (final_state).
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// Assertion types.
const (
	AssertLaneOrder   = "lane_order"
	AssertResultCount = "result_count"
	AssertFinalState  = "final_state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Publish) == 0 {
		return fmt.Errorf("publish list is required and must be non-empty")
	}

	for i, q := range s.Queues {
		if _, ok := meta.ParseInfo(q.Module); !ok {
			return fmt.Errorf("queues[%d]: invalid module %q", i, q.Module)
		}
		if q.Name == "" {
			return fmt.Errorf("queues[%d]: name is required", i)
		}
		switch q.Behavior {
		case "", BehaviorEcho, BehaviorPanic:
		case BehaviorFail, BehaviorError:
			if q.Code == 0 {
				return fmt.Errorf("queues[%d]: code is required for %s", i, q.Behavior)
			}
		default:
			return fmt.Errorf("queues[%d]: unknown behavior %q", i, q.Behavior)
		}
		if q.DelayMS < 0 {
			return fmt.Errorf("queues[%d]: delay_ms must be non-negative", i)
		}
	}

	for i, p := range s.Publish {
		if p.Module == "" {
			return fmt.Errorf("publish[%d]: module is required", i)
		}
		if p.Queue == "" {
			return fmt.Errorf("publish[%d]: queue is required", i)
		}
		if p.Expect != nil && p.Key == "" {
			return fmt.Errorf("publish[%d]: expect needs a key", i)
		}
		if p.Expect != nil && p.Expect.Data != nil && p.Expect.Error != nil {
			return fmt.Errorf("publish[%d]: expect takes data or error, not both", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertLaneOrder:
		if a.Lane == "" || len(a.Keys) == 0 {
			return fmt.Errorf("assertions[%d]: lane and keys are required for lane_order", index)
		}
	case AssertResultCount:
		if a.Lane == "" {
			return fmt.Errorf("assertions[%d]: lane is required for result_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
