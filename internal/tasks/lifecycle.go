package tasks

import (
	"context"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/lifecycle"
)

func (r *Repository) transition(ctx context.Context, id string, ev lifecycle.Event, actor domain.Party) (domain.Task, error) {
	return r.Mutate(ctx, id, func(t *domain.Task) error {
		return lifecycle.Apply(t, ev, actor)
	})
}

// Claim assigns a published task to the user. A task that is no longer
// published is left unchanged and lifecycle.ErrInvalidTransition returned.
func (r *Repository) Claim(ctx context.Context, id string, user domain.Party) (domain.Task, error) {
	return r.transition(ctx, id, lifecycle.EventClaim, user)
}

// MarkComplete records the occupier's completion and hands the task to the
// publisher for confirmation.
func (r *Repository) MarkComplete(ctx context.Context, id, occupierID string) (domain.Task, error) {
	return r.transition(ctx, id, lifecycle.EventMarkComplete, domain.Party{ID: occupierID})
}

// ConfirmCompletion records the publisher's acceptance.
// It does not settle the reward; see ledger.ConfirmPayment.
func (r *Repository) ConfirmCompletion(ctx context.Context, id, publisherID string) (domain.Task, error) {
	return r.transition(ctx, id, lifecycle.EventConfirm, domain.Party{ID: publisherID})
}

// RequestRevision sends a pending task back to its occupier.
func (r *Repository) RequestRevision(ctx context.Context, id, publisherID string) (domain.Task, error) {
	return r.transition(ctx, id, lifecycle.EventRequestRevision, domain.Party{ID: publisherID})
}
