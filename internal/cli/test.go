package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool
	Filter    string // glob over scenario file names, without extension
	GoldenDir string
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult is the outcome of a whole test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run marketplace scenarios",
		Long: `Run YAML scenarios against a fresh in-memory marketplace.

Each scenario seeds users and tasks, runs its flow, and checks every step's
expected outcome and the scenario's assertions. A scenario with a golden
trace (<golden-dir>/<name>.golden) must also reproduce it byte for byte.
The golden directory defaults to "golden" beside the scenarios directory.

Exits 1 when any scenario fails and 2 when the command cannot run.

Examples:
  taskmarket test ./testdata/scenarios
  taskmarket test ./testdata/scenarios --filter "claim_*"
  taskmarket test ./testdata/scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden traces instead of comparing them")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden trace directory (default <scenarios-dir>/../golden)")

	return cmd
}

// suite runs scenario files against one golden directory.
type suite struct {
	goldenDir string
	update    bool
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}
	s := suite{goldenDir: opts.GoldenDir, update: opts.Update}
	if s.goldenDir == "" {
		s.goldenDir = filepath.Join(filepath.Dir(filepath.Clean(dir)), "golden")
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	out := newFormatter(cmd, opts.RootOptions)
	w := cmd.OutOrStdout()
	result := TestResult{Scenarios: []ScenarioResult{}, Total: len(files)}
	for _, file := range files {
		r := s.run(file)
		if !out.isJSON() {
			printScenarioResult(w, r, s.update)
		}
		result.add(r)
	}

	if out.isJSON() {
		return writeTestJSON(out, result)
	}
	return writeTestSummary(w, result)
}

func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			ok, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func (s suite) run(file string) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: filepath.Base(file), Errors: []string{"failed to load scenario: " + err.Error()}}
	}
	res := ScenarioResult{Name: scenario.Name}

	run, err := harness.Run(scenario)
	if err != nil {
		res.Errors = []string{"execution failed: " + err.Error()}
		return res
	}
	res.Errors = append(res.Errors, run.Errors...)

	if msg := s.golden(scenario.Name, run); msg != "" {
		res.Errors = append(res.Errors, msg)
	}
	res.Pass = len(res.Errors) == 0
	return res
}

// golden writes or compares the scenario's golden trace and returns a
// failure message, or "" if there is nothing to report. Scenarios without
// a golden file are judged on their assertions alone.
func (s suite) golden(name string, run *harness.Result) string {
	snapshot, err := harness.TraceSnapshot{ScenarioName: name, Trace: run.Trace}.Marshal()
	if err != nil {
		return "failed to marshal trace: " + err.Error()
	}
	path := filepath.Join(s.goldenDir, name+".golden")

	if s.update {
		if err := os.MkdirAll(s.goldenDir, 0o755); err != nil {
			return "failed to create golden directory: " + err.Error()
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return "failed to write golden file: " + err.Error()
		}
		return ""
	}

	want, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ""
	case err != nil:
		return "failed to read golden file: " + err.Error()
	case !bytes.Equal(want, snapshot):
		return "trace does not match golden file (run with --update to regenerate)"
	}
	return ""
}

func printScenarioResult(w io.Writer, r ScenarioResult, updated bool) {
	switch {
	case !r.Pass:
		fmt.Fprintf(w, "✗ %s\n", r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
		}
	case updated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", r.Name)
	default:
		fmt.Fprintf(w, "✓ %s\n", r.Name)
	}
}

func failedScenarios(n int) string {
	return fmt.Sprintf("%d scenario(s) failed", n)
}

func writeTestJSON(out *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return out.Success(result)
	}
	resp := CLIResponse{
		Status: "error",
		Data:   result,
		Error:  &CLIError{Code: "test_failed", Message: failedScenarios(result.Failed)},
	}
	if err := out.encode(resp); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: failedScenarios(result.Failed), Reported: true}
}

func writeTestSummary(w io.Writer, result TestResult) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, failedScenarios(result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
