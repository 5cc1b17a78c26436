package tasks

import (
	"context"
	"fmt"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/lifecycle"
)

// AddReport appends a message to the task's report thread. Replies from
// the publisher are flagged as such.
func (r *Repository) AddReport(ctx context.Context, id string, author domain.Party, text string, files []domain.Attachment) (domain.Task, error) {
	text = domain.NormalizeText(text)
	if text == "" {
		return domain.Task{}, fmt.Errorf("%w: report text is required", ErrInvalidTask)
	}
	return r.Mutate(ctx, id, func(t *domain.Task) error {
		t.Reports = append(t.Reports, domain.Report{
			UserID:           author.ID,
			UserName:         author.Name,
			Text:             text,
			Files:            append([]domain.Attachment{}, files...),
			IsPublisherReply: author.ID == t.PublisherID,
			CreatedAt:        r.clock.Now(),
		})
		return nil
	})
}

// AddChallenge appends an issue raised against the task.
func (r *Repository) AddChallenge(ctx context.Context, id string, author domain.Party, text string) (domain.Task, error) {
	text = domain.NormalizeText(text)
	if text == "" {
		return domain.Task{}, fmt.Errorf("%w: challenge text is required", ErrInvalidTask)
	}
	return r.Mutate(ctx, id, func(t *domain.Task) error {
		t.Challenges = append(t.Challenges, domain.Challenge{
			UserID:    author.ID,
			UserName:  author.Name,
			Text:      text,
			CreatedAt: r.clock.Now(),
		})
		return nil
	})
}

// AddStatusUpdate appends a progress note. Only the publisher posts them.
func (r *Repository) AddStatusUpdate(ctx context.Context, id, publisherID, text string, files []domain.Attachment) (domain.Task, error) {
	text = domain.NormalizeText(text)
	if text == "" {
		return domain.Task{}, fmt.Errorf("%w: status text is required", ErrInvalidTask)
	}
	return r.Mutate(ctx, id, func(t *domain.Task) error {
		if t.PublisherID != publisherID {
			return fmt.Errorf("%w: status update (task=%s)", lifecycle.ErrNotPublisher, t.ID)
		}
		t.StatusUpdates = append(t.StatusUpdates, domain.StatusUpdate{
			Text:      text,
			Files:     append([]domain.Attachment{}, files...),
			CreatedAt: r.clock.Now(),
		})
		return nil
	})
}
