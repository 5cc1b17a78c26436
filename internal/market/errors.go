package market

import (
	"errors"

	"github.com/roach88/taskmarket/internal/ledger"
	"github.com/roach88/taskmarket/internal/lifecycle"
	"github.com/roach88/taskmarket/internal/store"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/users"
)

// Error codes reported by the CLI, the HTTP API and the scenario harness.
const (
	CodeOK                 = "ok"
	CodeTaskNotFound       = "task_not_found"
	CodeUserNotFound       = "user_not_found"
	CodeInvalidTransition  = "invalid_transition"
	CodeNotPublisher       = "not_publisher"
	CodeNotOccupier        = "not_occupier"
	CodeSelfClaim          = "self_claim"
	CodeNoOccupier         = "no_occupier"
	CodeNotParticipant     = "not_participant"
	CodeOverpayment        = "overpayment"
	CodeInsufficientFunds  = "insufficient_funds"
	CodeInvalidAmount      = "invalid_amount"
	CodeInvalidInput       = "invalid_input"
	CodeEmailTaken         = "email_taken"
	CodeInvalidCredentials = "invalid_credentials"
	CodeNotLoggedIn        = "not_logged_in"
	CodeConflict           = "conflict"
	CodeInternal           = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{tasks.ErrTaskNotFound, CodeTaskNotFound},
	{users.ErrUserNotFound, CodeUserNotFound},
	{lifecycle.ErrInvalidTransition, CodeInvalidTransition},
	{lifecycle.ErrNotPublisher, CodeNotPublisher},
	{lifecycle.ErrNotOccupier, CodeNotOccupier},
	{lifecycle.ErrSelfClaim, CodeSelfClaim},
	{ledger.ErrNoOccupier, CodeNoOccupier},
	{ledger.ErrNotParticipant, CodeNotParticipant},
	{ledger.ErrOverpayment, CodeOverpayment},
	{users.ErrInsufficientFunds, CodeInsufficientFunds},
	{users.ErrInvalidAmount, CodeInvalidAmount},
	{tasks.ErrInvalidTask, CodeInvalidInput},
	{users.ErrInvalidUser, CodeInvalidInput},
	{users.ErrEmailTaken, CodeEmailTaken},
	{users.ErrInvalidCredentials, CodeInvalidCredentials},
	{users.ErrNotLoggedIn, CodeNotLoggedIn},
	{store.ErrVersionConflict, CodeConflict},
}

// ErrorCode names the kind of err. nil is CodeOK; anything unrecognised
// is CodeInternal.
func ErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
