package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// AssertionError describes one failed assertion. Trace is attached for the
// trace assertions so the report shows what actually ran.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed\n  want: %s\n  got:  %s\n", e.Type, e.Expected, e.Actual)
	if len(e.Trace) == 0 {
		return b.String()
	}
	b.WriteString("\nFull trace:\n")
	for _, ev := range e.Trace {
		if ev.Type == EventInvocation {
			fmt.Fprintf(&b, "  #%d %s as %s %v\n", ev.Seq, ev.Action, ev.Actor, ev.Args)
		} else {
			fmt.Fprintf(&b, "  #%d   => %s\n", ev.Seq, ev.OutputCase)
		}
	}
	return b.String()
}

// call pairs an invocation with the case its completion reported.
type call struct {
	pos     int // 1-based position among invocations
	event   TraceEvent
	outcome string
}

func calls(trace []TraceEvent) []call {
	var out []call
	for i, ev := range trace {
		if ev.Type != EventInvocation {
			continue
		}
		c := call{pos: len(out) + 1, event: ev}
		if i+1 < len(trace) && trace[i+1].Type == EventCompletion {
			c.outcome = trace[i+1].OutputCase
		}
		out = append(out, c)
	}
	return out
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, c := range calls(trace) {
		if c.event.Action == a.Action && matchArgs(c.event.Args, a.Args) && (a.Case == "" || c.outcome == a.Case) {
			return nil
		}
	}

	want := fmt.Sprintf("%s called with %v", a.Action, a.Args)
	if a.Case != "" {
		want += " completing with " + a.Case
	}
	return &AssertionError{Type: AssertTraceContains, Expected: want, Actual: "no such call", Trace: trace}
}

// assertTraceOrder compares the first call of each listed action. Other
// calls may sit between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	first := map[string]int{}
	for _, c := range calls(trace) {
		if _, seen := first[c.event.Action]; !seen {
			first[c.event.Action] = c.pos
		}
	}

	for i, action := range a.Actions {
		pos, ok := first[action]
		if !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("calls to %v", a.Actions),
				Actual:   "missing action: " + action,
				Trace:    trace,
			}
		}
		if i == 0 {
			continue
		}
		prev := a.Actions[i-1]
		if first[prev] >= pos {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("calls in order %v", a.Actions),
				Actual:   fmt.Sprintf("%s (call %d) should be before %s (call %d)", prev, first[prev], action, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, c := range calls(trace) {
		if c.event.Action == a.Action {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d calls to %s", a.Count, a.Action),
		Actual:   fmt.Sprintf("%d occurrences", n),
		Trace:    trace,
	}
}

// assertFinalState needs exactly one record of a.Table to match Where, and
// that record to carry every field of Expect.
func assertFinalState(state map[string]any, a Assertion) error {
	where := describe(a.Where)
	fail := func(want, got string) error {
		return &AssertionError{Type: AssertFinalState, Expected: want, Actual: got}
	}

	rows, _ := state[a.Table].([]any)
	var matches []map[string]any
	for _, row := range rows {
		if rec, ok := row.(map[string]any); ok && matchArgs(rec, a.Where) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return fail(fmt.Sprintf("a %s record where %s", a.Table, where), "record not found")
	case 1:
	default:
		return fail(fmt.Sprintf("one %s record where %s", a.Table, where),
			fmt.Sprintf("%d records matched", len(matches)))
	}

	rec := matches[0]
	for _, field := range sortedKeys(a.Expect) {
		got, ok := rec[field]
		if !ok {
			return fail(fmt.Sprintf("field %q to exist", field), "absent where "+where)
		}
		if !valuesEqual(got, a.Expect[field]) {
			return fail(fmt.Sprintf("field %q = %v", field, a.Expect[field]), fmt.Sprintf("field %q = %v", field, got))
		}
	}
	return nil
}

func describe(where map[string]any) string {
	if len(where) == 0 {
		return "(anything)"
	}
	parts := []string{}
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// matchArgs reports whether every key of want is present in got with an
// equal value. Extra keys in got are fine.
func matchArgs(got, want map[string]any) bool {
	for k, w := range want {
		g, ok := got[k]
		if !ok || !valuesEqual(g, w) {
			return false
		}
	}
	return true
}

// valuesEqual compares a stored or traced value against a YAML-written
// expectation. Maps match as subsets, lists element-wise. Scalars match
// when they are the same decimal number or print identically, so that
// "100", 100 and "100.00" all equal a stored amount of "100".
func valuesEqual(actual, expected any) bool {
	switch exp := expected.(type) {
	case nil:
		return actual == nil
	case map[string]any:
		act, ok := actual.(map[string]any)
		return ok && matchArgs(act, exp)
	case []any:
		act, ok := actual.([]any)
		return ok && slices.EqualFunc(act, exp, valuesEqual)
	}

	if actual == nil {
		return false
	}
	a, e := fmt.Sprint(actual), fmt.Sprint(expected)
	if a == e {
		return true
	}
	ad, aerr := decimal.NewFromString(a)
	ed, eerr := decimal.NewFromString(e)
	return aerr == nil && eerr == nil && ad.Equal(ed)
}

var checks = map[string]func(*Result, Assertion) error{
	AssertTraceContains: func(r *Result, a Assertion) error { return assertTraceContains(r.Trace, a) },
	AssertTraceOrder:    func(r *Result, a Assertion) error { return assertTraceOrder(r.Trace, a) },
	AssertTraceCount:    func(r *Result, a Assertion) error { return assertTraceCount(r.Trace, a) },
	AssertFinalState:    func(r *Result, a Assertion) error { return assertFinalState(r.State, a) },
}

// EvaluateAssertions runs every assertion against the result and returns
// one message per failure, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		check, ok := checks[a.Type]
		if !ok {
			failures = append(failures, fmt.Sprintf("assertion[%d]: unknown assertion type %q", i, a.Type))
			continue
		}
		if err := check(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}
