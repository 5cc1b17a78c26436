package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ident"
	"github.com/roach88/taskmarket/internal/ledger"
	"github.com/roach88/taskmarket/internal/market"
	"github.com/roach88/taskmarket/internal/store"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/testutil"
	"github.com/roach88/taskmarket/internal/users"
)

// Origin tags every write a scenario makes.
const Origin = "harness"

// stateTables are the store keys final_state assertions may search.
var stateTables = []string{tasks.Key, users.Key, ledger.Key}

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and sequential ids.
type Harness struct {
	market *market.Market
	saved  map[string]string
	seq    int64
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Ids are sequential per kind ("user_1", "task_1", "payment_1") and the
// clock starts at testutil.Epoch, advancing one second per reading.
//
// Execution flow:
// 1. Create fresh in-memory market
// 2. Seed setup users and tasks
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions against the trace and final state
//
// A returned error means the scenario could not run; failed expectations
// are reported in Result.Errors instead.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	m, err := market.New(ctx, st, market.Options{
		Origin:     Origin,
		Clock:      testutil.NewDeterministicClock(testutil.Epoch, time.Second),
		IDs:        func(prefix string) ident.Generator { return testutil.NewSequenceGenerator(prefix) },
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create market: %w", err)
	}

	h := &Harness{
		market: m,
		saved:  map[string]string{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if _, err := m.Seed(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	state, err := h.finalState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.State = state

	assertions, err := h.resolveAssertions(scenario.Assertions)
	if err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, assertions) {
		result.Failf("%s", msg)
	}

	return result, nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step produces an invocation and a completion in the trace. The
// completion's output case is "ok" or the error code of the failure.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		resolved, err := h.resolve(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		stepArgs, _ := resolved.(map[string]any)

		var actor domain.User
		if step.As != "" {
			actor, err = h.market.Users.GetByEmail(step.As)
			if err != nil {
				return fmt.Errorf("flow step %d: unknown actor %q: %w", i, step.As, err)
			}
		}

		h.seq++
		result.invoked(h.seq, step.Action, step.As, stepArgs)

		out, actionErr := actions[step.Action](ctx, h.market, actor, args(stepArgs))
		outputCase := market.ErrorCode(actionErr)

		h.seq++
		result.completed(h.seq, outputCase, out)

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Action,
			"actor", step.As,
			"output_case", outputCase,
			"error", actionErr,
		)

		if step.Save != "" && actionErr == nil {
			if id, ok := out["id"].(string); ok {
				h.saved[step.Save] = id
			}
		}

		expected := ExpectClause{Case: market.CodeOK}
		if step.Expect != nil {
			expected = *step.Expect
		}
		if outputCase != expected.Case {
			if actionErr != nil {
				result.Failf("flow[%d] %s: expected case %q, got %q: %v", i, step.Action, expected.Case, outputCase, actionErr)
			} else {
				result.Failf("flow[%d] %s: expected case %q, got %q", i, step.Action, expected.Case, outputCase)
			}
			continue
		}
		if expected.Result != nil {
			want, err := h.resolve(expected.Result)
			if err != nil {
				return fmt.Errorf("flow step %d expect: %w", i, err)
			}
			if !matchArgs(out, want.(map[string]any)) {
				result.Failf("flow[%d] %s: expected result %v, got %v", i, step.Action, want, out)
			}
		}
	}

	return nil
}

// resolve replaces "$name" strings with saved ids, recursing into maps
// and lists.
func (h *Harness) resolve(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "$") {
			return val, nil
		}
		id, ok := h.saved[strings.TrimPrefix(val, "$")]
		if !ok {
			return nil, fmt.Errorf("unknown reference %q", val)
		}
		return id, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func (h *Harness) resolveAssertions(in []Assertion) ([]Assertion, error) {
	out := make([]Assertion, len(in))
	for i, a := range in {
		for _, m := range []*map[string]any{&a.Args, &a.Where, &a.Expect} {
			if *m == nil {
				continue
			}
			r, err := h.resolve(*m)
			if err != nil {
				return nil, fmt.Errorf("assertions[%d]: %w", i, err)
			}
			*m = r.(map[string]any)
		}
		out[i] = a
	}
	return out, nil
}

// finalState decodes every collection into plain JSON values, so
// assertions compare what is actually stored.
func (h *Harness) finalState(ctx context.Context) (map[string]any, error) {
	dump, err := h.market.Export(ctx)
	if err != nil {
		return nil, err
	}
	state := make(map[string]any, len(stateTables))
	for _, key := range stateTables {
		var rows []any
		if raw, ok := dump[key]; ok {
			if err := json.Unmarshal(raw, &rows); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		}
		state[key] = rows
	}
	return state, nil
}
