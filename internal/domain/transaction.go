package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes ledger records.
type TransactionKind string

const (
	// KindPayment moves reward money from publisher to occupier.
	KindPayment TransactionKind = "payment"
	// KindRewardAdded records the publisher topping up a task's reward.
	KindRewardAdded TransactionKind = "reward_added"
)

// TransactionStatus tracks acknowledgement of a ledger record.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionConfirmed TransactionStatus = "confirmed"
)

// ConfirmedBy names who acknowledged a transaction.
type ConfirmedBy string

const (
	ConfirmedByPublisher ConfirmedBy = "publisher"
	ConfirmedByOccupier  ConfirmedBy = "occupier"
	ConfirmedByBoth      ConfirmedBy = "both"
)

// Transaction is an append-only ledger record. Only Status and ConfirmedBy
// may change after creation.
type Transaction struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	TaskTitle   string            `json:"task_title"`
	From        Party             `json:"from"`
	To          Party             `json:"to"`
	Amount      decimal.Decimal   `json:"amount"`
	Kind        TransactionKind   `json:"kind"`
	Status      TransactionStatus `json:"status"`
	ConfirmedBy ConfirmedBy       `json:"confirmed_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
