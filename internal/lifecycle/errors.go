package lifecycle

import (
	"errors"
	"fmt"

	"github.com/roach88/taskmarket/internal/domain"
)

var (
	// ErrInvalidTransition means the event is not legal from the task's status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotPublisher means only the publisher may perform the event.
	ErrNotPublisher = errors.New("actor is not the publisher")
	// ErrNotOccupier means only the occupier may perform the event.
	ErrNotOccupier = errors.New("actor is not the occupier")
	// ErrSelfClaim means a publisher tried to claim their own task.
	ErrSelfClaim = errors.New("publisher cannot claim own task")
	// ErrInvariant means a task is in a state the model forbids.
	ErrInvariant = errors.New("task invariant violated")
)

// TransitionError describes a rejected event.
type TransitionError struct {
	Kind   error
	TaskID string
	From   domain.Status
	Event  Event
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s from %s (task=%s)", e.Kind.Error(), e.Event, e.From, e.TaskID)
}

func (e *TransitionError) Unwrap() error { return e.Kind }

func rejected(kind error, t *domain.Task, ev Event) error {
	return &TransitionError{Kind: kind, TaskID: t.ID, From: t.Status, Event: ev}
}
