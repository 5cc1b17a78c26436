package market

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/users"
)

// Fixture is a YAML description of users and tasks to preload.
//
// Example:
//
//	users:
//	  - name: Test User
//	    email: test@example.com
//	    password: password123
//	    balance: "100"
//	tasks:
//	  - title: Write docs
//	    publisher: test@example.com
//	    reward: "25"
//	    deadline: "2024-03-01T00:00:00Z"
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
	Tasks []FixtureTask `yaml:"tasks"`
}

// FixtureUser is one account in a fixture.
type FixtureUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Balance  string `yaml:"balance"`
}

// FixtureTask is one task in a fixture. Publisher and ClaimedBy are emails.
type FixtureTask struct {
	Title       string `yaml:"title"`
	Summary     string `yaml:"summary"`
	Description string `yaml:"description"`
	Publisher   string `yaml:"publisher"`
	Reward      string `yaml:"reward"`
	Deadline    string `yaml:"deadline"`
	ClaimedBy   string `yaml:"claimed_by"`
}

// SeedResult counts what Seed created.
type SeedResult struct {
	Users        int `json:"users"`
	SkippedUsers int `json:"skipped_users"`
	Tasks        int `json:"tasks"`
}

// LoadFixture reads a fixture file. Unknown fields are rejected.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes fixture YAML. Unknown fields are rejected.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// Seed creates the fixture's users and tasks. Users whose email is already
// registered are kept as they are, so seeding twice only adds tasks.
func (m *Market) Seed(ctx context.Context, f Fixture) (SeedResult, error) {
	var res SeedResult

	for i, fu := range f.Users {
		if _, err := m.Users.GetByEmail(fu.Email); err == nil {
			res.SkippedUsers++
			continue
		}
		balance, err := parseAmount(fu.Balance)
		if err != nil {
			return res, fmt.Errorf("users[%d]: balance: %w", i, err)
		}
		if _, err := m.Users.Signup(ctx, users.SignupInput{
			Name:           fu.Name,
			Email:          fu.Email,
			Password:       fu.Password,
			InitialBalance: balance,
		}); err != nil {
			return res, fmt.Errorf("users[%d]: %w", i, err)
		}
		res.Users++
	}

	for i, ft := range f.Tasks {
		if err := m.seedTask(ctx, ft); err != nil {
			return res, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		res.Tasks++
	}

	slog.Info("fixture seeded", "users", res.Users, "skipped_users", res.SkippedUsers, "tasks", res.Tasks)
	return res, nil
}

func (m *Market) seedTask(ctx context.Context, ft FixtureTask) error {
	publisher, err := m.Users.GetByEmail(ft.Publisher)
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	reward, err := parseAmount(ft.Reward)
	if err != nil {
		return fmt.Errorf("reward: %w", err)
	}
	var deadline time.Time
	if ft.Deadline != "" {
		deadline, err = time.Parse(time.RFC3339, ft.Deadline)
		if err != nil {
			return fmt.Errorf("deadline: %w", err)
		}
	}

	task, err := m.Tasks.Create(ctx, tasks.NewTask{
		Title:       ft.Title,
		Summary:     ft.Summary,
		Description: ft.Description,
		Publisher:   publisher.Party(),
		Deadline:    deadline,
		Reward:      reward,
	})
	if err != nil {
		return err
	}

	if ft.ClaimedBy == "" {
		return nil
	}
	occupier, err := m.Users.GetByEmail(ft.ClaimedBy)
	if err != nil {
		return fmt.Errorf("claimed_by: %w", err)
	}
	_, err = m.Tasks.Claim(ctx, task.ID, occupier.Party())
	return err
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Party looks up a user and returns their reference.
func (m *Market) Party(userID string) (domain.Party, error) {
	u, err := m.Users.Get(userID)
	if err != nil {
		return domain.Party{}, err
	}
	return u.Party(), nil
}
