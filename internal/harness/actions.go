package harness

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/market"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/users"
)

// Action names accepted in flow steps.
const (
	ActionUserSignup     = "user.signup"
	ActionUserDeposit    = "user.deposit"
	ActionTaskCreate     = "task.create"
	ActionTaskUpdate     = "task.update"
	ActionTaskDelete     = "task.delete"
	ActionTaskClaim      = "task.claim"
	ActionTaskComplete   = "task.complete"
	ActionTaskConfirm    = "task.confirm"
	ActionTaskRevise     = "task.revise"
	ActionTaskReport     = "task.report"
	ActionTaskChallenge  = "task.challenge"
	ActionTaskStatus     = "task.status"
	ActionRewardAdd      = "reward.add"
	ActionRewardPay      = "reward.pay"
	ActionPaymentConfirm = "payment.confirm"
)

type actionFunc func(ctx context.Context, m *market.Market, actor domain.User, args args) (map[string]any, error)

var actions = map[string]actionFunc{
	ActionUserSignup: func(ctx context.Context, m *market.Market, _ domain.User, a args) (map[string]any, error) {
		balance, err := a.amount("balance")
		if err != nil {
			return nil, err
		}
		u, err := m.Users.Signup(ctx, users.SignupInput{
			Name:           a.str("name"),
			Email:          a.str("email"),
			Password:       a.str("password"),
			InitialBalance: balance,
		})
		if err != nil {
			return nil, err
		}
		return userResult(u), nil
	},
	ActionUserDeposit: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		amount, err := a.amount("amount")
		if err != nil {
			return nil, err
		}
		return userOut(m.Users.Deposit(ctx, actor.ID, amount))
	},
	ActionTaskCreate: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		reward, err := a.amount("reward")
		if err != nil {
			return nil, err
		}
		deadline, err := a.timestamp("deadline")
		if err != nil {
			return nil, err
		}
		return taskOut(m.Tasks.Create(ctx, tasks.NewTask{
			Title:       a.str("title"),
			Summary:     a.str("summary"),
			Description: a.str("description"),
			Publisher:   actor.Party(),
			Deadline:    deadline,
			Reward:      reward,
		}))
	},
	ActionTaskUpdate: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		var p tasks.Patch
		p.Title = a.optional("title")
		p.Summary = a.optional("summary")
		p.Description = a.optional("description")
		if _, ok := a["deadline"]; ok {
			deadline, err := a.timestamp("deadline")
			if err != nil {
				return nil, err
			}
			p.Deadline = &deadline
		}
		return taskOut(m.UpdateTask(ctx, a.str("task"), actor.ID, p))
	},
	ActionTaskDelete: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		if err := m.DeleteTask(ctx, a.str("task"), actor.ID); err != nil {
			return nil, err
		}
		return map[string]any{"id": a.str("task")}, nil
	},
	ActionTaskClaim: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.Tasks.Claim(ctx, a.str("task"), actor.Party()))
	},
	ActionTaskComplete: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.Tasks.MarkComplete(ctx, a.str("task"), actor.ID))
	},
	ActionTaskConfirm: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.ConfirmCompletion(ctx, a.str("task"), actor.ID))
	},
	ActionTaskRevise: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.Tasks.RequestRevision(ctx, a.str("task"), actor.ID))
	},
	ActionTaskReport: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.Tasks.AddReport(ctx, a.str("task"), actor.Party(), a.str("text"), nil))
	},
	ActionTaskChallenge: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.Tasks.AddChallenge(ctx, a.str("task"), actor.Party(), a.str("text")))
	},
	ActionTaskStatus: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.PostStatusUpdate(ctx, a.str("task"), actor.ID, a.str("text"), nil))
	},
	ActionRewardAdd: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		amount, err := a.amount("amount")
		if err != nil {
			return nil, err
		}
		return taskOut(m.Ledger.AddReward(ctx, a.str("task"), actor.ID, amount))
	},
	ActionRewardPay: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		amount, err := a.amount("amount")
		if err != nil {
			return nil, err
		}
		return taskOut(m.Ledger.PayReward(ctx, a.str("task"), actor.ID, amount))
	},
	ActionPaymentConfirm: func(ctx context.Context, m *market.Market, actor domain.User, a args) (map[string]any, error) {
		return taskOut(m.Ledger.ConfirmPayment(ctx, a.str("task"), actor.ID))
	},
}

// Actions lists the action names a flow step may use, sorted.
func Actions() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// args are a flow step's arguments after reference resolution.
type args map[string]any

func (a args) str(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (a args) optional(key string) *string {
	if _, ok := a[key]; !ok {
		return nil
	}
	s := a.str(key)
	return &s
}

// amount reads a decimal written either as a YAML number or a string.
// A missing amount is zero.
func (a args) amount(key string) (decimal.Decimal, error) {
	s := a.str(key)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", users.ErrInvalidAmount, key, err)
	}
	return d, nil
}

func (a args) timestamp(key string) (time.Time, error) {
	s := a.str(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", tasks.ErrInvalidTask, key, err)
	}
	return t, nil
}

// taskResult is the compact view of a task recorded in the trace.
func taskResult(t domain.Task) map[string]any {
	out := map[string]any{
		"id":          t.ID,
		"status":      string(t.Status),
		"reward":      t.Reward.String(),
		"reward_paid": t.RewardPaid.String(),
		"version":     t.Version,
	}
	if t.OccupiedBy != nil {
		out["occupied_by"] = t.OccupiedBy.ID
	}
	if !t.PublisherConfirmedAmount.IsZero() {
		out["publisher_confirmed_amount"] = t.PublisherConfirmedAmount.String()
	}
	if !t.OccupierConfirmedAmount.IsZero() {
		out["occupier_confirmed_amount"] = t.OccupierConfirmedAmount.String()
	}
	return out
}

func taskOut(t domain.Task, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return taskResult(t), nil
}

func userResult(u domain.User) map[string]any {
	return map[string]any{
		"id":             u.ID,
		"wallet_balance": u.WalletBalance.String(),
	}
}

func userOut(u domain.User, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return userResult(u), nil
}
