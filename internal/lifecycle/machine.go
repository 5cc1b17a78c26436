package lifecycle

import (
	"fmt"

	"github.com/roach88/taskmarket/internal/domain"
)

// Event drives a status transition.
type Event string

const (
	EventClaim           Event = "claim"
	EventMarkComplete    Event = "mark_complete"
	EventConfirm         Event = "confirm_completion"
	EventRequestRevision Event = "request_revision"
)

// IsTerminal reports whether no event can leave s.
func IsTerminal(s domain.Status) bool {
	return s == domain.StatusCompleted
}

// Next returns the status reached by ev from from, without role checks.
func Next(from domain.Status, ev Event) (domain.Status, bool) {
	switch from {
	case domain.StatusPublished:
		if ev == EventClaim {
			return domain.StatusOccupied, true
		}
	case domain.StatusOccupied:
		if ev == EventMarkComplete {
			return domain.StatusPendingPublisherConfirmation, true
		}
	case domain.StatusPendingPublisherConfirmation:
		switch ev {
		case EventConfirm:
			return domain.StatusCompleted, true
		case EventRequestRevision:
			return domain.StatusOccupied, true
		}
	}
	return from, false
}

// Allowed lists the events legal from s.
func Allowed(s domain.Status) []Event {
	var out []Event
	for _, ev := range []Event{EventClaim, EventMarkComplete, EventConfirm, EventRequestRevision} {
		if _, ok := Next(s, ev); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Apply validates ev against t's status and actor's role, then mutates t.
// t is left untouched on error.
func Apply(t *domain.Task, ev Event, actor domain.Party) error {
	to, ok := Next(t.Status, ev)
	if !ok {
		return rejected(ErrInvalidTransition, t, ev)
	}

	switch ev {
	case EventClaim:
		if actor.ID == t.PublisherID {
			return rejected(ErrSelfClaim, t, ev)
		}
		occupier := actor
		t.OccupiedBy = &occupier
	case EventMarkComplete:
		if !t.IsOccupiedBy(actor.ID) {
			return rejected(ErrNotOccupier, t, ev)
		}
		t.IsCompletedByOccupier = true
	case EventConfirm:
		if actor.ID != t.PublisherID {
			return rejected(ErrNotPublisher, t, ev)
		}
		t.IsCompletedByPublisher = true
	case EventRequestRevision:
		if actor.ID != t.PublisherID {
			return rejected(ErrNotPublisher, t, ev)
		}
		t.IsCompletedByOccupier = false
	}

	t.Status = to
	return nil
}

// Validate checks the structural invariants of a task:
//   - status is known
//   - occupied_by is nil iff status is published
//   - 0 <= reward_paid <= reward
func Validate(t domain.Task) error {
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q (task=%s)", ErrInvariant, t.Status, t.ID)
	}
	if (t.OccupiedBy == nil) != (t.Status == domain.StatusPublished) {
		return fmt.Errorf("%w: occupied_by must be set iff status is not published (task=%s, status=%s)",
			ErrInvariant, t.ID, t.Status)
	}
	if t.Reward.IsNegative() {
		return fmt.Errorf("%w: negative reward (task=%s)", ErrInvariant, t.ID)
	}
	if t.RewardPaid.IsNegative() || t.RewardPaid.GreaterThan(t.Reward) {
		return fmt.Errorf("%w: reward_paid %s outside [0, %s] (task=%s)",
			ErrInvariant, t.RewardPaid, t.Reward, t.ID)
	}
	return nil
}
