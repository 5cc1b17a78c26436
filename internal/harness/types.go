package harness

import "fmt"

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// TraceEvent records either a flow step's call (Action, Actor, Args) or
// what it returned (OutputCase, Result). Seq orders events across the run.
type TraceEvent struct {
	Type       string         `json:"type"`
	Seq        int64          `json:"seq"`
	Action     string         `json:"action,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	OutputCase string         `json:"output_case,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
}

// Result is what a scenario run produced.
type Result struct {
	Pass   bool           `json:"pass"`
	Trace  []TraceEvent   `json:"trace"`
	Errors []string       `json:"errors,omitempty"`
	State  map[string]any `json:"state,omitempty"` // final collections by store key
}

// NewResult returns an empty, passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  map[string]any{},
	}
}

// Failf records a failed expectation.
func (r *Result) Failf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

func (r *Result) invoked(seq int64, action, actor string, args map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{Type: EventInvocation, Seq: seq, Action: action, Actor: actor, Args: args})
}

func (r *Result) completed(seq int64, outputCase string, result map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{Type: EventCompletion, Seq: seq, OutputCase: outputCase, Result: result})
}
