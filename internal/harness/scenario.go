package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/taskmarket/internal/market"
)

// Scenario is a scripted session against a fresh marketplace: seed users
// and tasks, run a flow of actions as named users, then check the trace
// and the stored collections.
type Scenario struct {
	Name        string         `yaml:"name"` // also names the golden file
	Description string         `yaml:"description"`
	Setup       market.Fixture `yaml:"setup"` // seeded untraced
	Flow        []FlowStep     `yaml:"flow"`
	Assertions  []Assertion    `yaml:"assertions"`
}

// FlowStep runs one action as one user.
//
// As is the acting user's email; only user.signup may leave it empty. A
// string arg of the form "$name" is replaced by the id an earlier step
// saved under name. A nil Expect means the step must return "ok".
type FlowStep struct {
	Action string         `yaml:"action"`
	As     string         `yaml:"as,omitempty"`
	Args   map[string]any `yaml:"args"`
	Save   string         `yaml:"save,omitempty"`
	Expect *ExpectClause  `yaml:"expect,omitempty"`
}

// ExpectClause is the completion a step must produce. Case is "ok" or an
// error code; Result, if set, must be a subset of the returned record.
type ExpectClause struct {
	Case   string         `yaml:"case"`
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains" // Action called with Args, optionally ending in Case
	AssertTraceOrder    = "trace_order"    // first calls of Actions happen in that order
	AssertTraceCount    = "trace_count"    // Action called exactly Count times
	AssertFinalState    = "final_state"    // one Table record matching Where carries Expect
)

// Assertion is one check over a finished run. Which fields apply depends
// on Type. Args, Where and Expect all match as subsets.
type Assertion struct {
	Type    string         `yaml:"type"`
	Action  string         `yaml:"action,omitempty"`
	Args    map[string]any `yaml:"args,omitempty"`
	Case    string         `yaml:"case,omitempty"`
	Actions []string       `yaml:"actions,omitempty"`
	Count   int            `yaml:"count,omitempty"`
	Table   string         `yaml:"table,omitempty"` // tasks, users or transactions
	Where   map[string]any `yaml:"where,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`
}

var errScenario = errors.New("invalid scenario")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errScenario, fmt.Sprintf(format, args...))
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes scenario YAML. Unknown keys are rejected so a
// misspelt section fails loudly instead of being skipped.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	switch {
	case s.Name == "":
		return invalid("missing name")
	case s.Description == "":
		return invalid("missing description")
	case len(s.Flow) == 0:
		return invalid("empty flow")
	case len(s.Assertions) == 0:
		return invalid("no assertions")
	}

	known := Actions()
	saved := map[string]int{}
	for i, step := range s.Flow {
		switch {
		case !slices.Contains(known, step.Action):
			return invalid("flow[%d]: unknown action %q", i, step.Action)
		case step.As == "" && step.Action != ActionUserSignup:
			return invalid("flow[%d]: %s needs an actor (as)", i, step.Action)
		case step.Args == nil:
			return invalid("flow[%d]: missing args (write args: {} for none)", i)
		case step.Expect != nil && step.Expect.Case == "":
			return invalid("flow[%d]: expect without case", i)
		}
		if step.Save == "" {
			continue
		}
		if prev, dup := saved[step.Save]; dup {
			return invalid("flow[%d]: %q was already saved by flow[%d]", i, step.Save, prev)
		}
		saved[step.Save] = i
	}

	for i, a := range s.Assertions {
		if err := a.validate(); err != nil {
			return invalid("assertions[%d]: %v", i, err)
		}
	}
	return nil
}

func (a Assertion) validate() error {
	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("%s needs an action", a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("negative count %d", a.Count)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return errors.New("trace_order needs actions")
		}
	case AssertFinalState:
		if !slices.Contains(stateTables, a.Table) {
			return fmt.Errorf("final_state table %q is not one of %v", a.Table, stateTables)
		}
		if len(a.Where) == 0 || len(a.Expect) == 0 {
			return errors.New("final_state needs where and expect")
		}
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
