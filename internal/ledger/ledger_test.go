package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/lifecycle"
	"github.com/roach88/taskmarket/internal/store"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/testutil"
	"github.com/roach88/taskmarket/internal/users"
)

type fixture struct {
	ledger *Ledger
	tasks  *tasks.Repository
	users  *users.Directory
	alice  domain.User
	bob    domain.User
	carol  domain.User
}

func newFixture(t *testing.T, aliceBalance string) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewStore(t), aliceBalance)
}

func newFixtureOn(t *testing.T, s store.KV, aliceBalance string) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := testutil.NewDeterministicClock(testutil.Epoch, time.Second)

	dir, err := users.New(ctx, s, users.Options{
		Origin: "test", IDs: testutil.NewSequenceGenerator("user-"), Clock: clock, BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	repo, err := tasks.New(ctx, s, tasks.Options{
		Origin: "test", IDs: testutil.NewSequenceGenerator("task-"), Clock: clock,
	})
	require.NoError(t, err)
	l, err := New(ctx, s, repo, dir, Options{
		Origin: "test", IDs: testutil.NewSequenceGenerator("payment-"), Clock: clock,
	})
	require.NoError(t, err)

	f := &fixture{ledger: l, tasks: repo, users: dir}
	f.alice = f.signup(t, "Alice", aliceBalance)
	f.bob = f.signup(t, "Bob", "0")
	f.carol = f.signup(t, "Carol", "0")
	return f
}

func (f *fixture) signup(t *testing.T, name, balance string) domain.User {
	t.Helper()
	u, err := f.users.Signup(context.Background(), users.SignupInput{
		Name:           name,
		Email:          name + "@example.com",
		Password:       "pw",
		InitialBalance: decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) publish(t *testing.T, reward string) domain.Task {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), tasks.NewTask{
		Title:     "Translate README",
		Publisher: f.alice.Party(),
		Reward:    decimal.RequireFromString(reward),
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) publishClaimed(t *testing.T, reward string) domain.Task {
	t.Helper()
	task := f.publish(t, reward)
	task, err := f.tasks.Claim(context.Background(), task.ID, f.bob.Party())
	require.NoError(t, err)
	return task
}

func (f *fixture) balance(t *testing.T, id string) string {
	t.Helper()
	u, err := f.users.Get(id)
	require.NoError(t, err)
	return u.WalletBalance.String()
}

func TestAddReward_DebitsPublisher(t *testing.T) {
	f := newFixture(t, "30")
	task := f.publish(t, "50")

	got, err := f.ledger.AddReward(context.Background(), task.ID, f.alice.ID, decimal.NewFromInt(20))
	require.NoError(t, err)

	assert.Equal(t, "70", got.Reward.String())
	assert.Equal(t, "10", f.balance(t, f.alice.ID))

	txns := f.ledger.ForTask(task.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.KindRewardAdded, txns[0].Kind)
	assert.Equal(t, domain.TransactionConfirmed, txns[0].Status)
	assert.Equal(t, "20", txns[0].Amount.String())
	assert.Equal(t, f.alice.ID, txns[0].From.ID)

	stored, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "70", stored.Reward.String())
}

func TestAddReward_InsufficientFundsChangesNothing(t *testing.T) {
	f := newFixture(t, "10")
	task := f.publish(t, "50")

	_, err := f.ledger.AddReward(context.Background(), task.ID, f.alice.ID, decimal.NewFromInt(11))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	stored, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", stored.Reward.String())
	assert.Equal(t, "10", f.balance(t, f.alice.ID))
	assert.Empty(t, f.ledger.Transactions())
}

func TestAddReward_Rejections(t *testing.T) {
	f := newFixture(t, "100")
	task := f.publish(t, "50")
	ctx := context.Background()

	_, err := f.ledger.AddReward(ctx, task.ID, f.bob.ID, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, lifecycle.ErrNotPublisher)

	_, err = f.ledger.AddReward(ctx, task.ID, f.alice.ID, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.ledger.AddReward(ctx, "missing", f.alice.ID, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
}

func TestPayReward_TransfersAndRecordsPending(t *testing.T) {
	f := newFixture(t, "30")
	task := f.publishClaimed(t, "50")

	got, err := f.ledger.PayReward(context.Background(), task.ID, f.alice.ID, decimal.NewFromInt(20))
	require.NoError(t, err)

	assert.Equal(t, "20", got.RewardPaid.String())
	assert.Equal(t, "30", got.RemainingReward().String())
	assert.Equal(t, "10", f.balance(t, f.alice.ID))
	assert.Equal(t, "20", f.balance(t, f.bob.ID))

	txns := f.ledger.ForTask(task.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.KindPayment, txns[0].Kind)
	assert.Equal(t, domain.TransactionPending, txns[0].Status)
	assert.Equal(t, f.bob.Party(), txns[0].To)
}

func TestPayReward_Guards(t *testing.T) {
	f := newFixture(t, "30")
	ctx := context.Background()

	unclaimed := f.publish(t, "50")
	_, err := f.ledger.PayReward(ctx, unclaimed.ID, f.alice.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNoOccupier)

	task := f.publishClaimed(t, "50")
	_, err = f.ledger.PayReward(ctx, task.ID, f.alice.ID, decimal.NewFromInt(51))
	assert.ErrorIs(t, err, ErrOverpayment)

	_, err = f.ledger.PayReward(ctx, task.ID, f.alice.ID, decimal.NewFromInt(31))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.ledger.PayReward(ctx, task.ID, f.bob.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, lifecycle.ErrNotPublisher)

	_, err = f.ledger.PayReward(ctx, task.ID, f.alice.ID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	stored, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.True(t, stored.RewardPaid.IsZero())
	assert.Equal(t, "30", f.balance(t, f.alice.ID))
	assert.Equal(t, "0", f.balance(t, f.bob.ID))
}

func TestConfirmPayment_CreatesSettlement(t *testing.T) {
	f := newFixture(t, "0")
	task := f.publishClaimed(t, "100")

	got, err := f.ledger.ConfirmPayment(context.Background(), task.ID, f.bob.ID)
	require.NoError(t, err)

	assert.Equal(t, "100", got.RewardPaid.String())
	assert.Equal(t, "100", got.PublisherConfirmedAmount.String())
	assert.Equal(t, "100", got.OccupierConfirmedAmount.String())
	assert.Equal(t, domain.StatusOccupied, got.Status, "settlement does not move the lifecycle")

	txns := f.ledger.ForTask(task.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, "100", txns[0].Amount.String())
	assert.Equal(t, domain.TransactionConfirmed, txns[0].Status)
	assert.Equal(t, domain.ConfirmedByBoth, txns[0].ConfirmedBy)
	assert.Equal(t, f.alice.ID, txns[0].From.ID)
	assert.Equal(t, f.bob.ID, txns[0].To.ID)

	// No wallet money moves on settlement.
	assert.Equal(t, "0", f.balance(t, f.alice.ID))
	assert.Equal(t, "0", f.balance(t, f.bob.ID))
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	f := newFixture(t, "0")
	task := f.publishClaimed(t, "100")
	ctx := context.Background()

	once, err := f.ledger.ConfirmPayment(ctx, task.ID, f.alice.ID)
	require.NoError(t, err)
	twice, err := f.ledger.ConfirmPayment(ctx, task.ID, f.bob.ID)
	require.NoError(t, err)

	assert.True(t, once.RewardPaid.Equal(twice.RewardPaid))
	assert.True(t, once.PublisherConfirmedAmount.Equal(twice.PublisherConfirmedAmount))
	assert.True(t, once.OccupierConfirmedAmount.Equal(twice.OccupierConfirmedAmount))
	assert.Equal(t, once.Version, twice.Version)
	assert.Len(t, f.ledger.ForTask(task.ID), 1)
}

func TestConfirmPayment_ConfirmsPendingPayments(t *testing.T) {
	f := newFixture(t, "100")
	task := f.publishClaimed(t, "100")
	ctx := context.Background()

	_, err := f.ledger.PayReward(ctx, task.ID, f.alice.ID, decimal.NewFromInt(40))
	require.NoError(t, err)
	_, err = f.ledger.PayReward(ctx, task.ID, f.alice.ID, decimal.NewFromInt(60))
	require.NoError(t, err)

	got, err := f.ledger.ConfirmPayment(ctx, task.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.RewardPaid.String())

	txns := f.ledger.ForTask(task.ID)
	require.Len(t, txns, 2)
	for _, txn := range txns {
		assert.Equal(t, domain.TransactionConfirmed, txn.Status)
		assert.Equal(t, domain.ConfirmedByBoth, txn.ConfirmedBy)
	}
	assert.Equal(t, "0", f.balance(t, f.alice.ID))
	assert.Equal(t, "100", f.balance(t, f.bob.ID))
}

func TestConfirmPayment_Rejections(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	unclaimed := f.publish(t, "10")
	_, err := f.ledger.ConfirmPayment(ctx, unclaimed.ID, f.alice.ID)
	assert.ErrorIs(t, err, ErrNoOccupier)

	task := f.publishClaimed(t, "10")
	_, err = f.ledger.ConfirmPayment(ctx, task.ID, f.carol.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.ledger.ConfirmPayment(ctx, "missing", f.alice.ID)
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)

	assert.Empty(t, f.ledger.Transactions())
}

func TestConfirmCompletion_CompletesAndSettles(t *testing.T) {
	f := newFixture(t, "0")
	task := f.publishClaimed(t, "100")
	ctx := context.Background()

	_, err := f.tasks.MarkComplete(ctx, task.ID, f.bob.ID)
	require.NoError(t, err)

	got, err := f.ledger.ConfirmCompletion(ctx, task.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.True(t, got.IsCompletedByPublisher)
	assert.Equal(t, "100", got.RewardPaid.String())

	stored, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Len(t, f.ledger.ForTask(task.ID), 1)
}

func TestConfirmCompletion_WrongStateSettlesNothing(t *testing.T) {
	f := newFixture(t, "0")
	task := f.publishClaimed(t, "100")

	_, err := f.ledger.ConfirmCompletion(context.Background(), task.ID, f.alice.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	stored, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOccupied, stored.Status)
	assert.True(t, stored.RewardPaid.IsZero())
	assert.Empty(t, f.ledger.Transactions())
}

type writeAfterGet struct {
	store.KV
	key   string
	write func()
}

func (k *writeAfterGet) Get(ctx context.Context, key string) (store.Entry, bool, error) {
	e, found, err := k.KV.Get(ctx, key)
	if key == k.key && k.write != nil {
		w := k.write
		k.write = nil
		w()
	}
	return e, found, err
}

func TestReload_KeepsNewerCommit(t *testing.T) {
	kv := &writeAfterGet{KV: testutil.NewStore(t), key: Key}
	f := newFixtureOn(t, kv, "100")
	task := f.publish(t, "10")
	ctx := context.Background()

	kv.write = func() {
		_, err := f.ledger.AddReward(ctx, task.ID, f.alice.ID, decimal.NewFromInt(5))
		require.NoError(t, err)
	}
	require.NoError(t, f.ledger.Reload(ctx))

	txns := f.ledger.ForTask(task.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.KindRewardAdded, txns[0].Kind)
}
