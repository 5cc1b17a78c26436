package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ident"
	"github.com/roach88/taskmarket/internal/lifecycle"
	"github.com/roach88/taskmarket/internal/store"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/users"
)

// Key is the store key holding the transaction collection.
const Key = "transactions"

var (
	// ErrNoOccupier means the task has nobody to pay.
	ErrNoOccupier = errors.New("task has no occupier")
	// ErrNotParticipant means the user is neither publisher nor occupier.
	ErrNotParticipant = errors.New("user is not a party to the task")
	// ErrOverpayment means a payment would take reward_paid past reward.
	ErrOverpayment = errors.New("payment exceeds remaining reward")
	// ErrInvalidAmount means a non-positive amount was given.
	ErrInvalidAmount = users.ErrInvalidAmount
	// ErrInsufficientFunds means the publisher's wallet cannot cover it.
	ErrInsufficientFunds = users.ErrInsufficientFunds
)

// Options configures a Ledger. Zero values pick production defaults.
type Options struct {
	Origin string
	IDs    ident.Generator
	Clock  ident.Clock
}

// Ledger is the reward ledger of one origin.
type Ledger struct {
	kv     store.KV
	origin string
	ids    ident.Generator
	clock  ident.Clock
	tasks  *tasks.Repository
	users  *users.Directory

	mu      sync.Mutex
	txns    []domain.Transaction
	version int64
}

// New creates a ledger over the given repository and directory, which must
// share kv.
func New(ctx context.Context, kv store.KV, repo *tasks.Repository, dir *users.Directory, opts Options) (*Ledger, error) {
	if opts.IDs == nil {
		opts.IDs = ident.UUIDv7{Prefix: "payment_"}
	}
	if opts.Clock == nil {
		opts.Clock = ident.SystemClock{}
	}
	l := &Ledger{
		kv:     kv,
		origin: opts.Origin,
		ids:    opts.IDs,
		clock:  opts.Clock,
		tasks:  repo,
		users:  dir,
	}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload replaces the in-memory transactions with the stored ones, keeping
// the cache if a concurrent commit already installed a newer version.
func (l *Ledger) Reload(ctx context.Context) error {
	items, version, err := store.LoadCollection[domain.Transaction](ctx, l.kv, Key)
	if err != nil {
		return err
	}
	l.install(items, version)
	return nil
}

func (l *Ledger) install(items []domain.Transaction, version int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if version >= l.version {
		l.txns, l.version = items, version
	}
}

// commit runs fn atomically and then refreshes every component whose
// collection fn may have written.
func (l *Ledger) commit(ctx context.Context, fn func(*store.Txn) error) error {
	tx, err := store.Atomically(ctx, l.kv, l.origin, fn)
	if err != nil {
		return err
	}
	items, err := store.Load[domain.Transaction](tx, Key)
	if err != nil {
		return err
	}
	l.install(items, tx.Version(Key))

	if err := l.tasks.Reload(ctx); err != nil {
		return err
	}
	return l.users.Reload(ctx)
}

// ConfirmPayment settles the task in full on behalf of its publisher or
// occupier. Pending payments between the two are marked confirmed by both;
// if there are none, a confirmed payment for the whole reward is recorded.
// The task's reward_paid and both confirmed amounts become its reward.
// Completion is not required.
func (l *Ledger) ConfirmPayment(ctx context.Context, taskID, userID string) (domain.Task, error) {
	var out domain.Task
	err := l.commit(ctx, func(tx *store.Txn) error {
		var err error
		out, err = l.settleIn(tx, taskID, userID)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}

	slog.Debug("payment confirmed", "task", taskID, "by", userID, "amount", out.Reward.String())
	return out, nil
}

// ConfirmCompletion accepts the occupier's work on behalf of the publisher
// and settles the reward, in one write. A task that is not awaiting
// confirmation is rejected by the lifecycle and nothing is settled.
func (l *Ledger) ConfirmCompletion(ctx context.Context, taskID, publisherID string) (domain.Task, error) {
	var out domain.Task
	err := l.commit(ctx, func(tx *store.Txn) error {
		_, err := tasks.MutateIn(tx, taskID, func(t *domain.Task) error {
			return lifecycle.Apply(t, lifecycle.EventConfirm, domain.Party{ID: publisherID})
		})
		if err != nil {
			return err
		}
		out, err = l.settleIn(tx, taskID, publisherID)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}

	slog.Debug("task completed", "task", taskID, "reward_paid", out.RewardPaid.String())
	return out, nil
}

func (l *Ledger) settleIn(tx *store.Txn, taskID, userID string) (domain.Task, error) {
	task, err := tasks.GetIn(tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.OccupiedBy == nil {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNoOccupier, task.ID)
	}
	if userID != task.PublisherID && !task.IsOccupiedBy(userID) {
		return domain.Task{}, fmt.Errorf("%w: user %s, task %s", ErrNotParticipant, userID, task.ID)
	}

	txns, err := store.Load[domain.Transaction](tx, Key)
	if err != nil {
		return domain.Task{}, err
	}
	matched, changed := false, false
	for i := range txns {
		t := &txns[i]
		if t.Kind != domain.KindPayment || t.TaskID != task.ID ||
			t.From.ID != task.PublisherID || t.To.ID != task.OccupiedBy.ID {
			continue
		}
		matched = true
		if t.Status != domain.TransactionConfirmed || t.ConfirmedBy != domain.ConfirmedByBoth {
			t.Status = domain.TransactionConfirmed
			t.ConfirmedBy = domain.ConfirmedByBoth
			changed = true
		}
	}
	if !matched {
		txns = append(txns, l.record(task, *task.OccupiedBy, task.Reward, domain.KindPayment, domain.TransactionConfirmed, domain.ConfirmedByBoth))
		changed = true
	}
	if changed {
		if err := store.Stage(tx, Key, txns); err != nil {
			return domain.Task{}, err
		}
	}

	if settled(task) {
		return task.Clone(), nil
	}
	return tasks.MutateIn(tx, task.ID, func(t *domain.Task) error {
		t.RewardPaid = t.Reward
		t.PublisherConfirmedAmount = t.Reward
		t.OccupierConfirmedAmount = t.Reward
		return nil
	})
}

func settled(t domain.Task) bool {
	return t.RewardPaid.Equal(t.Reward) &&
		t.PublisherConfirmedAmount.Equal(t.Reward) &&
		t.OccupierConfirmedAmount.Equal(t.Reward)
}

// AddReward moves amount from the publisher's wallet into the task's
// reward and records it.
func (l *Ledger) AddReward(ctx context.Context, taskID, publisherID string, amount decimal.Decimal) (domain.Task, error) {
	if !amount.IsPositive() {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	var out domain.Task
	err := l.commit(ctx, func(tx *store.Txn) error {
		task, err := tasks.GetIn(tx, taskID)
		if err != nil {
			return err
		}
		if task.PublisherID != publisherID {
			return fmt.Errorf("%w: add reward (task=%s)", lifecycle.ErrNotPublisher, task.ID)
		}
		if _, err := users.AdjustIn(tx, publisherID, amount.Neg()); err != nil {
			return err
		}

		out, err = tasks.MutateIn(tx, task.ID, func(t *domain.Task) error {
			t.Reward = t.Reward.Add(amount)
			return nil
		})
		if err != nil {
			return err
		}
		return l.append(tx, l.record(task, task.Publisher(), amount, domain.KindRewardAdded, domain.TransactionConfirmed, domain.ConfirmedByPublisher))
	})
	if err != nil {
		return domain.Task{}, err
	}

	slog.Debug("reward added", "task", taskID, "amount", amount.String(), "reward", out.Reward.String())
	return out, nil
}

// PayReward transfers amount from the publisher to the occupier and
// records a pending payment awaiting confirmation.
func (l *Ledger) PayReward(ctx context.Context, taskID, publisherID string, amount decimal.Decimal) (domain.Task, error) {
	if !amount.IsPositive() {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	var out domain.Task
	err := l.commit(ctx, func(tx *store.Txn) error {
		task, err := tasks.GetIn(tx, taskID)
		if err != nil {
			return err
		}
		if task.PublisherID != publisherID {
			return fmt.Errorf("%w: pay reward (task=%s)", lifecycle.ErrNotPublisher, task.ID)
		}
		if task.OccupiedBy == nil {
			return fmt.Errorf("%w: %s", ErrNoOccupier, task.ID)
		}
		if amount.GreaterThan(task.RemainingReward()) {
			return fmt.Errorf("%w: paying %s, %s remaining (task=%s)",
				ErrOverpayment, amount, task.RemainingReward(), task.ID)
		}
		if _, err := users.AdjustIn(tx, publisherID, amount.Neg()); err != nil {
			return err
		}
		if _, err := users.AdjustIn(tx, task.OccupiedBy.ID, amount); err != nil {
			return err
		}

		out, err = tasks.MutateIn(tx, task.ID, func(t *domain.Task) error {
			t.RewardPaid = t.RewardPaid.Add(amount)
			return nil
		})
		if err != nil {
			return err
		}
		return l.append(tx, l.record(task, *task.OccupiedBy, amount, domain.KindPayment, domain.TransactionPending, ""))
	})
	if err != nil {
		return domain.Task{}, err
	}

	slog.Debug("reward paid", "task", taskID, "amount", amount.String(), "paid", out.RewardPaid.String())
	return out, nil
}

func (l *Ledger) record(task domain.Task, to domain.Party, amount decimal.Decimal, kind domain.TransactionKind, status domain.TransactionStatus, by domain.ConfirmedBy) domain.Transaction {
	return domain.Transaction{
		ID:          l.ids.Generate(),
		TaskID:      task.ID,
		TaskTitle:   task.Title,
		From:        task.Publisher(),
		To:          to,
		Amount:      amount,
		Kind:        kind,
		Status:      status,
		ConfirmedBy: by,
		CreatedAt:   l.clock.Now(),
	}
}

func (l *Ledger) append(tx *store.Txn, t domain.Transaction) error {
	txns, err := store.Load[domain.Transaction](tx, Key)
	if err != nil {
		return err
	}
	return store.Stage(tx, Key, append(txns, t))
}

// Transactions returns every recorded transaction, oldest first.
func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]domain.Transaction{}, l.txns...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ForTask returns the transactions recorded against one task, oldest first.
func (l *Ledger) ForTask(taskID string) []domain.Transaction {
	out := []domain.Transaction{}
	for _, t := range l.Transactions() {
		if t.TaskID == taskID {
			out = append(out, t)
		}
	}
	return out
}
