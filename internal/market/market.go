// Package market wires the store, user directory, task repository and
// reward ledger into the single service used by the CLI, the HTTP API and
// the scenario harness.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ident"
	"github.com/roach88/taskmarket/internal/ledger"
	"github.com/roach88/taskmarket/internal/store"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/users"
)

// DefaultOrigin names writes made by a market with no configured origin.
const DefaultOrigin = "taskmarket"

// Options configures a Market. Zero values pick production defaults.
type Options struct {
	// Origin tags every write so watchers can ignore their own changes.
	Origin string

	// PollInterval is how often Watch checks the change log.
	PollInterval time.Duration

	// Clock and IDs override time and id generation (for testing).
	// IDs is called once per component with that component's prefix.
	Clock ident.Clock
	IDs   func(prefix string) ident.Generator

	// BcryptCost overrides the password hashing cost (for testing).
	BcryptCost int
}

// Market is the marketplace service of one origin.
type Market struct {
	store        *store.Store
	origin       string
	pollInterval time.Duration
	clock        ident.Clock

	Users  *users.Directory
	Tasks  *tasks.Repository
	Ledger *ledger.Ledger
}

// Open opens the store at path and builds a market on it. Close releases
// the store.
func Open(ctx context.Context, path string, opts Options) (*Market, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := New(ctx, st, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	return m, nil
}

// New builds a market on an open store.
func New(ctx context.Context, st *store.Store, opts Options) (*Market, error) {
	if opts.Origin == "" {
		opts.Origin = DefaultOrigin
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = ident.SystemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = func(prefix string) ident.Generator { return ident.UUIDv7{Prefix: prefix} }
	}

	dir, err := users.New(ctx, st, users.Options{
		Origin:     opts.Origin,
		IDs:        opts.IDs("user_"),
		Clock:      opts.Clock,
		BcryptCost: opts.BcryptCost,
	})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	repo, err := tasks.New(ctx, st, tasks.Options{
		Origin: opts.Origin,
		IDs:    opts.IDs("task_"),
		Clock:  opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	led, err := ledger.New(ctx, st, repo, dir, ledger.Options{
		Origin: opts.Origin,
		IDs:    opts.IDs("payment_"),
		Clock:  opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	return &Market{
		store:        st,
		origin:       opts.Origin,
		pollInterval: opts.PollInterval,
		clock:        opts.Clock,
		Users:        dir,
		Tasks:        repo,
		Ledger:       led,
	}, nil
}

// Close closes the underlying store.
func (m *Market) Close() error {
	return m.store.Close()
}

// Ping checks the store is reachable.
func (m *Market) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Origin returns the origin this market writes under.
func (m *Market) Origin() string {
	return m.origin
}

// Now returns the market's current time.
func (m *Market) Now() time.Time {
	return m.clock.Now()
}

// ConfirmCompletion moves a task awaiting confirmation to completed and
// settles its reward in the same write, so a completed task always has
// reward_paid equal to reward and a payment linking publisher and
// occupier.
func (m *Market) ConfirmCompletion(ctx context.Context, taskID, publisherID string) (domain.Task, error) {
	return m.Ledger.ConfirmCompletion(ctx, taskID, publisherID)
}

// Reload refreshes every component from the store.
func (m *Market) Reload(ctx context.Context) error {
	if err := m.Users.Reload(ctx); err != nil {
		return err
	}
	if err := m.Tasks.Reload(ctx); err != nil {
		return err
	}
	return m.Ledger.Reload(ctx)
}

// Export returns every stored document keyed by store key.
func (m *Market) Export(ctx context.Context) (map[string]json.RawMessage, error) {
	return m.store.Dump(ctx)
}

// Watch reloads components as other origins write to the store, calling
// notify (if non-nil) after each reload. It blocks until ctx is done.
func (m *Market) Watch(ctx context.Context, notify func(store.Change)) error {
	w, err := m.store.NewWatcher(ctx, m.origin, m.pollInterval,
		users.Key, users.SessionKey, tasks.Key, ledger.Key)
	if err != nil {
		return err
	}

	slog.Info("watching for changes", "origin", m.origin, "interval", m.pollInterval)
	for c := range w.Run(ctx) {
		if err := m.reloadFor(ctx, c.Key); err != nil {
			slog.Warn("reload failed", "key", c.Key, "seq", c.Seq, "error", err)
			continue
		}
		slog.Debug("reloaded", "key", c.Key, "from", c.Origin, "seq", c.Seq)
		if notify != nil {
			notify(c)
		}
	}
	return nil
}

func (m *Market) reloadFor(ctx context.Context, key string) error {
	switch key {
	case users.Key:
		return m.Users.Reload(ctx)
	case tasks.Key:
		return m.Tasks.Reload(ctx)
	case ledger.Key:
		return m.Ledger.Reload(ctx)
	}
	return nil
}
