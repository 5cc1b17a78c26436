package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/tasks"
)

// PaymentState classifies how much of a task's reward one side has
// acknowledged.
type PaymentState string

const (
	StatePending   PaymentState = "pending"
	StateConfirmed PaymentState = "confirmed"
	StatePartially PaymentState = "partially"
)

// Role is the viewer's side of a task.
type Role string

const (
	RolePublisher Role = "publisher"
	RoleOccupier  Role = "occupier"
)

// StateOf reports the payment state of t as seen by role.
func StateOf(t domain.Task, role Role) PaymentState {
	confirmed := t.OccupierConfirmedAmount
	if role == RolePublisher {
		confirmed = t.PublisherConfirmedAmount
	}
	switch {
	case confirmed.IsZero():
		return StatePending
	case confirmed.Equal(t.Reward):
		return StateConfirmed
	default:
		return StatePartially
	}
}

// History splits a user's payment transactions by direction.
type History struct {
	Sent     []domain.Transaction `json:"sent"`
	Received []domain.Transaction `json:"received"`
}

// History returns the payments the user sent and received. Reward top-ups
// are not payments and are left out.
func (l *Ledger) History(userID string) History {
	h := History{Sent: []domain.Transaction{}, Received: []domain.Transaction{}}
	for _, t := range l.Transactions() {
		if t.Kind != domain.KindPayment {
			continue
		}
		if t.From.ID == userID {
			h.Sent = append(h.Sent, t)
		}
		if t.To.ID == userID {
			h.Received = append(h.Received, t)
		}
	}
	return h
}

// Summary is a user's accounting overview. The pending totals are reward
// not yet paid out: PendingToPay over tasks the user published,
// PendingToReceive over tasks the user occupies.
type Summary struct {
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	PendingToPay     decimal.Decimal `json:"pending_to_pay"`
	PendingToReceive decimal.Decimal `json:"pending_to_receive"`
	Balance          decimal.Decimal `json:"balance"`
}

// Summary totals what the user has paid as a publisher and earned on
// completed tasks as an occupier, what is still outstanding either way,
// and their wallet balance.
func (l *Ledger) Summary(userID string) (Summary, error) {
	user, err := l.users.Get(userID)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		TotalPaid:        decimal.Zero,
		TotalEarned:      decimal.Zero,
		PendingToPay:     decimal.Zero,
		PendingToReceive: decimal.Zero,
		Balance:          user.WalletBalance,
	}
	for _, t := range l.tasks.List(tasks.Filter{PublisherID: userID}) {
		s.TotalPaid = s.TotalPaid.Add(t.PublisherConfirmedAmount)
		s.PendingToPay = s.PendingToPay.Add(t.RemainingReward())
	}
	for _, t := range l.tasks.List(tasks.Filter{OccupierID: userID}) {
		if t.Status == domain.StatusCompleted {
			s.TotalEarned = s.TotalEarned.Add(t.OccupierConfirmedAmount)
		}
		s.PendingToReceive = s.PendingToReceive.Add(t.RemainingReward())
	}
	return s, nil
}
