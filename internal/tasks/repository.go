package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ident"
	"github.com/roach88/taskmarket/internal/lifecycle"
	"github.com/roach88/taskmarket/internal/store"
)

// Key is the store key holding the task collection.
const Key = "tasks"

var (
	// ErrTaskNotFound means no task has the requested id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTask means a create or update carried unusable fields.
	ErrInvalidTask = errors.New("invalid task")
)

// Options configures a Repository. Zero values pick production defaults.
type Options struct {
	Origin string
	IDs    ident.Generator
	Clock  ident.Clock
}

// Repository is the task collection of one origin.
//
// Thread-safety: All methods are safe for concurrent use.
type Repository struct {
	kv     store.KV
	origin string
	ids    ident.Generator
	clock  ident.Clock

	mu      sync.Mutex
	tasks   []domain.Task
	version int64
}

// New creates a repository and loads the current collection.
func New(ctx context.Context, kv store.KV, opts Options) (*Repository, error) {
	if opts.IDs == nil {
		opts.IDs = ident.UUIDv7{Prefix: "task_"}
	}
	if opts.Clock == nil {
		opts.Clock = ident.SystemClock{}
	}
	r := &Repository{
		kv:     kv,
		origin: opts.Origin,
		ids:    opts.IDs,
		clock:  opts.Clock,
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the in-memory collection with the stored one, unless a
// commit made while it was reading already installed a newer version.
func (r *Repository) Reload(ctx context.Context) error {
	items, version, err := store.LoadCollection[domain.Task](ctx, r.kv, Key)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.install(items, version)
	r.mu.Unlock()
	return nil
}

// install replaces the cache with a collection read at version. Versions
// only grow, so an older read is dropped. r.mu must be held.
func (r *Repository) install(items []domain.Task, version int64) {
	if version < r.version {
		slog.Debug("dropping stale task collection", "origin", r.origin, "read", version, "cached", r.version)
		return
	}
	r.tasks, r.version = items, version
}

// Version returns the collection version last seen by this repository.
func (r *Repository) Version() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// commit runs fn in a store transaction and refreshes the in-memory
// collection from what was written.
func (r *Repository) commit(ctx context.Context, fn func(*store.Txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := store.Atomically(ctx, r.kv, r.origin, fn)
	if err != nil {
		return err
	}
	items, err := store.Load[domain.Task](tx, Key)
	if err != nil {
		return err
	}
	r.install(items, tx.Version(Key))
	return nil
}

// NewTask holds the caller-supplied fields of a task.
type NewTask struct {
	Title       string
	Summary     string
	Description string
	Files       []domain.Attachment
	Publisher   domain.Party
	Deadline    time.Time
	Reward      decimal.Decimal
}

// Create publishes a new task.
func (r *Repository) Create(ctx context.Context, in NewTask) (domain.Task, error) {
	title := domain.NormalizeText(in.Title)
	if title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if in.Publisher.ID == "" {
		return domain.Task{}, fmt.Errorf("%w: publisher is required", ErrInvalidTask)
	}
	if in.Reward.IsNegative() {
		return domain.Task{}, fmt.Errorf("%w: reward must not be negative", ErrInvalidTask)
	}

	files := append([]domain.Attachment{}, in.Files...)
	task := domain.Task{
		ID:                       r.ids.Generate(),
		Title:                    title,
		Summary:                  domain.NormalizeText(in.Summary),
		Description:              domain.NormalizeText(in.Description),
		Files:                    files,
		PublisherID:              in.Publisher.ID,
		PublisherName:            in.Publisher.Name,
		PublishedAt:              r.clock.Now(),
		Deadline:                 in.Deadline.UTC(),
		Reward:                   in.Reward,
		RewardPaid:               decimal.Zero,
		Status:                   domain.StatusPublished,
		Reports:                  []domain.Report{},
		Challenges:               []domain.Challenge{},
		StatusUpdates:            []domain.StatusUpdate{},
		PublisherConfirmedAmount: decimal.Zero,
		OccupierConfirmedAmount:  decimal.Zero,
		Version:                  1,
	}

	err := r.commit(ctx, func(tx *store.Txn) error {
		items, err := store.Load[domain.Task](tx, Key)
		if err != nil {
			return err
		}
		return store.Stage(tx, Key, append(items, task))
	})
	if err != nil {
		return domain.Task{}, err
	}

	slog.Debug("task created", "task", task.ID, "publisher", task.PublisherID, "reward", task.Reward.String())
	return task.Clone(), nil
}

// Mutate applies fn to a copy of the task with the given id and persists
// the result. fn's error aborts the write. The task must still satisfy
// lifecycle.Validate afterwards; its version is bumped.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(*domain.Task) error) (domain.Task, error) {
	var out domain.Task
	err := r.commit(ctx, func(tx *store.Txn) error {
		var err error
		out, err = MutateIn(tx, id, fn)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// MutateIn is Mutate inside a caller-owned transaction, for operations
// that must change a task together with other collections.
func MutateIn(tx *store.Txn, id string, fn func(*domain.Task) error) (domain.Task, error) {
	items, err := store.Load[domain.Task](tx, Key)
	if err != nil {
		return domain.Task{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	t := items[i].Clone()
	if err := fn(&t); err != nil {
		return domain.Task{}, err
	}
	if err := lifecycle.Validate(t); err != nil {
		return domain.Task{}, err
	}
	t.Version = items[i].Version + 1
	items[i] = t

	if err := store.Stage(tx, Key, items); err != nil {
		return domain.Task{}, err
	}
	return t.Clone(), nil
}

// GetIn returns the task with the given id as seen by tx.
func GetIn(tx *store.Txn, id string) (domain.Task, error) {
	items, err := store.Load[domain.Task](tx, Key)
	if err != nil {
		return domain.Task{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return items[i], nil
}

// Patch lists the editable fields of a task. Nil fields are left alone.
type Patch struct {
	Title       *string
	Summary     *string
	Description *string
	Deadline    *time.Time
	Files       *[]domain.Attachment
}

// Apply merges the non-nil fields of p into t.
func (p Patch) Apply(t *domain.Task) error {
	if p.Title != nil {
		title := domain.NormalizeText(*p.Title)
		if title == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidTask)
		}
		t.Title = title
	}
	if p.Summary != nil {
		t.Summary = domain.NormalizeText(*p.Summary)
	}
	if p.Description != nil {
		t.Description = domain.NormalizeText(*p.Description)
	}
	if p.Deadline != nil {
		t.Deadline = p.Deadline.UTC()
	}
	if p.Files != nil {
		t.Files = append([]domain.Attachment{}, (*p.Files)...)
	}
	return nil
}

// Update merges the non-nil fields of p into the task.
func (r *Repository) Update(ctx context.Context, id string, p Patch) (domain.Task, error) {
	return r.Mutate(ctx, id, p.Apply)
}

// Delete removes the task on behalf of its publisher. Ownership is checked
// against the version being deleted.
func (r *Repository) Delete(ctx context.Context, id, publisherID string) error {
	return r.commit(ctx, func(tx *store.Txn) error {
		items, err := store.Load[domain.Task](tx, Key)
		if err != nil {
			return err
		}
		i := indexOf(items, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if items[i].PublisherID != publisherID {
			return fmt.Errorf("%w: delete (task=%s)", lifecycle.ErrNotPublisher, id)
		}
		return store.Stage(tx, Key, append(items[:i], items[i+1:]...))
	})
}

// Get returns a copy of the task from the in-memory collection.
func (r *Repository) Get(id string) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.tasks, id)
	if i < 0 {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return r.tasks[i].Clone(), nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Status      domain.Status
	PublisherID string
	OccupierID  string
}

func (f Filter) match(t domain.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.PublisherID != "" && t.PublisherID != f.PublisherID {
		return false
	}
	if f.OccupierID != "" && !t.IsOccupiedBy(f.OccupierID) {
		return false
	}
	return true
}

// List returns copies of matching tasks, newest first.
// Returns an empty slice (not nil) if nothing matches.
func (r *Repository) List(f Filter) []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.Task{}
	for _, t := range r.tasks {
		if f.match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

func indexOf(items []domain.Task, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
