package market

import (
	"context"
	"fmt"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/lifecycle"
	"github.com/roach88/taskmarket/internal/tasks"
)

// UpdateTask edits a task on behalf of its publisher.
func (m *Market) UpdateTask(ctx context.Context, taskID, userID string, p tasks.Patch) (domain.Task, error) {
	return m.Tasks.Mutate(ctx, taskID, func(t *domain.Task) error {
		if t.PublisherID != userID {
			return fmt.Errorf("%w: update (task=%s)", lifecycle.ErrNotPublisher, t.ID)
		}
		return p.Apply(t)
	})
}

// DeleteTask removes a task on behalf of its publisher.
func (m *Market) DeleteTask(ctx context.Context, taskID, userID string) error {
	return m.Tasks.Delete(ctx, taskID, userID)
}

// PostStatusUpdate appends a progress note on behalf of the publisher.
func (m *Market) PostStatusUpdate(ctx context.Context, taskID, userID, text string, files []domain.Attachment) (domain.Task, error) {
	return m.Tasks.AddStatusUpdate(ctx, taskID, userID, text, files)
}
