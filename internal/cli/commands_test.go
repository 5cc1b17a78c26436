package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ledger"
	"github.com/roach88/taskmarket/internal/market"
)

// runCLI executes one command against db, the way a separate invocation
// of the binary would.
func runCLI(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{Market: market.Options{BcryptCost: bcrypt.MinCost}}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--db", db, "--origin", "cli-test"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRunJSON runs a command with --format json and decodes its data.
func mustRunJSON[T any](t *testing.T, db string, args ...string) T {
	t.Helper()
	out, err := runCLI(t, db, append([]string{"--format", "json"}, args...)...)
	require.NoError(t, err, out)

	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "market.db")
}

func TestCLI_ClaimCompleteConfirm(t *testing.T) {
	db := testDB(t)

	alice := mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Alice", "--email", "alice@example.com", "--password", "secret", "--balance", "100")
	assert.Equal(t, "Alice", alice.Name)
	assert.Empty(t, alice.PasswordHash)

	task := mustRunJSON[domain.Task](t, db, "task", "create", "--title", "Design logo", "--reward", "40", "--deadline", "2030-03-01")
	assert.Equal(t, domain.StatusPublished, task.Status)
	assert.Equal(t, alice.ID, task.PublisherID)

	out, err := runCLI(t, db, "task", "claim", task.ID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [self_claim]")

	mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Bob", "--email", "bob@example.com", "--password", "secret")

	claimed := mustRunJSON[domain.Task](t, db, "task", "claim", task.ID)
	assert.Equal(t, domain.StatusOccupied, claimed.Status)

	done := mustRunJSON[domain.Task](t, db, "task", "complete", task.ID)
	assert.Equal(t, domain.StatusPendingPublisherConfirmation, done.Status)

	out, err = runCLI(t, db, "user", "login", "--email", "alice@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Alice")

	confirmed := mustRunJSON[domain.Task](t, db, "task", "confirm", task.ID)
	assert.Equal(t, domain.StatusCompleted, confirmed.Status)
	assert.True(t, confirmed.RewardPaid.Equal(decimal.NewFromInt(40)))

	summary := mustRunJSON[ledger.Summary](t, db, "payment", "summary")
	assert.True(t, summary.TotalPaid.Equal(decimal.NewFromInt(40)))

	out, err = runCLI(t, db, "task", "show", task.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "status:    completed")
	assert.Contains(t, out, "publisher payment confirmed")
}

func TestCLI_NotLoggedIn(t *testing.T) {
	db := testDB(t)

	out, err := runCLI(t, db, "task", "create", "--title", "Orphan")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "not_logged_in")

	out, err = runCLI(t, db, "--format", "json", "user", "whoami")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, market.CodeNotLoggedIn, resp.Error.Code)
}

func TestCLI_Logout(t *testing.T) {
	db := testDB(t)
	mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Alice", "--email", "alice@example.com", "--password", "secret")

	out, err := runCLI(t, db, "user", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")

	_, err = runCLI(t, db, "user", "logout")
	require.NoError(t, err)

	_, err = runCLI(t, db, "user", "whoami")
	require.Error(t, err)
}

func TestCLI_InvalidFormat(t *testing.T) {
	_, err := runCLI(t, testDB(t), "--format", "yaml", "user", "whoami")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCLI_RewardsAndHistory(t *testing.T) {
	db := testDB(t)
	mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Alice", "--email", "alice@example.com", "--password", "secret", "--balance", "50")
	task := mustRunJSON[domain.Task](t, db, "task", "create", "--title", "Fix bug", "--reward", "10")

	out, err := runCLI(t, db, "reward", "add", task.ID, "100")
	require.Error(t, err)
	assert.Contains(t, out, "insufficient_funds")

	out, err = runCLI(t, db, "reward", "add", task.ID, "abc")
	require.Error(t, err)
	assert.Contains(t, out, "invalid_amount")

	topped := mustRunJSON[domain.Task](t, db, "reward", "add", task.ID, "20")
	assert.True(t, topped.Reward.Equal(decimal.NewFromInt(30)))

	mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Bob", "--email", "bob@example.com", "--password", "secret")
	mustRunJSON[domain.Task](t, db, "task", "claim", task.ID)

	_, err = runCLI(t, db, "user", "login", "--email", "alice@example.com", "--password", "secret")
	require.NoError(t, err)

	paid := mustRunJSON[domain.Task](t, db, "reward", "pay", task.ID, "10")
	assert.True(t, paid.RewardPaid.Equal(decimal.NewFromInt(10)))

	history := mustRunJSON[ledger.History](t, db, "payment", "history")
	require.Len(t, history.Sent, 1)
	assert.Equal(t, domain.TransactionPending, history.Sent[0].Status)
	assert.Empty(t, history.Received)

	out, err = runCLI(t, db, "payment", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Fix bug")
	assert.Contains(t, out, "Bob")
}

func TestCLI_UpdateAndList(t *testing.T) {
	db := testDB(t)
	mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Alice", "--email", "alice@example.com", "--password", "secret")
	task := mustRunJSON[domain.Task](t, db, "task", "create", "--title", "Draft")

	updated := mustRunJSON[domain.Task](t, db, "task", "update", task.ID, "--title", "Final", "--summary", "short")
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, "short", updated.Summary)
	assert.Equal(t, int64(2), updated.Version)

	listed := mustRunJSON[[]domain.Task](t, db, "task", "list", "--published")
	require.Len(t, listed, 1)

	out, err := runCLI(t, db, "task", "list", "--status", "done")
	require.Error(t, err)
	assert.Contains(t, out, "invalid_input")

	out, err = runCLI(t, db, "task", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Final")

	_, err = runCLI(t, db, "task", "delete", task.ID)
	require.NoError(t, err)

	out, err = runCLI(t, db, "task", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks.")
}

func TestCLI_Threads(t *testing.T) {
	db := testDB(t)
	mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Alice", "--email", "alice@example.com", "--password", "secret")
	task := mustRunJSON[domain.Task](t, db, "task", "create", "--title", "Write docs")

	mustRunJSON[domain.Task](t, db, "task", "status", task.ID, "--text", "kickoff")
	withReport := mustRunJSON[domain.Task](t, db, "task", "report", task.ID, "--text", "see the outline")
	require.Len(t, withReport.Reports, 1)
	assert.True(t, withReport.Reports[0].IsPublisherReply)

	withChallenge := mustRunJSON[domain.Task](t, db, "task", "challenge", task.ID, "--text", "scope unclear")
	assert.Len(t, withChallenge.Challenges, 1)
	assert.Len(t, withChallenge.StatusUpdates, 1)
}

func TestCLI_DepositAndProfile(t *testing.T) {
	db := testDB(t)
	mustRunJSON[domain.User](t, db, "user", "signup",
		"--name", "Alice", "--email", "alice@example.com", "--password", "secret")

	u := mustRunJSON[domain.User](t, db, "user", "deposit", "25.50")
	assert.Equal(t, "25.5", u.WalletBalance.String())

	u = mustRunJSON[domain.User](t, db, "user", "profile", "--wallet-address", "0xabc")
	assert.Equal(t, "0xabc", u.WalletAddress)

	_, err := runCLI(t, db, "user", "deposit", "-5")
	require.Error(t, err)
}

func TestCLI_SeedAndExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "market.db")
	fixture := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(`users:
  - name: Alice
    email: alice@example.com
    password: password123
    balance: "100"
  - name: Bob
    email: bob@example.com
    password: password123
tasks:
  - title: Write docs
    publisher: alice@example.com
    reward: "25"
`), 0o644))

	out, err := runCLI(t, db, "seed", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 2 users (0 already existed) and 1 tasks")

	res := mustRunJSON[market.SeedResult](t, db, "seed", fixture)
	assert.Equal(t, market.SeedResult{Users: 0, SkippedUsers: 2, Tasks: 1}, res)

	out, err = runCLI(t, db, "export")
	require.NoError(t, err)
	var dump map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &dump))
	assert.Contains(t, dump, "users")
	assert.Contains(t, dump, "tasks")

	var exported []domain.Task
	require.NoError(t, json.Unmarshal(dump["tasks"], &exported))
	assert.Len(t, exported, 2)

	target := filepath.Join(dir, "backup.json")
	_, err = runCLI(t, db, "export", "-o", target)
	require.NoError(t, err)
	assert.FileExists(t, target)
}

func TestCLI_SeedMissingFile(t *testing.T) {
	_, err := runCLI(t, testDB(t), "seed", "/nonexistent/fixture.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_ServeRequiresSecret(t *testing.T) {
	t.Setenv("TASKMARKET_SERVER_JWT_SECRET", "")
	_, err := runCLI(t, testDB(t), "serve", "--listen", "127.0.0.1:0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "jwt_secret")
}
