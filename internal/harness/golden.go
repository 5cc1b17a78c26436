package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir holds committed traces, one <scenario name>.golden each,
// relative to the package under test.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the content of a golden file.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Marshal renders the snapshot as two-space indented JSON ending in a
// newline. encoding/json sorts map keys, so a trace always renders the
// same bytes.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// CheckGolden fails t if the trace in r differs from the committed trace
// for the named scenario. Run the tests with -update to rewrite it.
func CheckGolden(t *testing.T, name string, r *Result) {
	t.Helper()

	data, err := TraceSnapshot{ScenarioName: name, Trace: r.Trace}.Marshal()
	if err != nil {
		t.Fatalf("marshal trace of %s: %v", name, err)
	}

	g := goldie.New(t, goldie.WithFixtureDir(GoldenDir), goldie.WithNameSuffix(".golden"))
	g.Assert(t, name, data)
}
