package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusPublished                    Status = "published"
	StatusOccupied                     Status = "occupied"
	StatusPendingPublisherConfirmation Status = "pending_publisher_confirmation"
	StatusCompleted                    Status = "completed"
)

// ValidStatuses lists every status in lifecycle order.
var ValidStatuses = []Status{
	StatusPublished,
	StatusOccupied,
	StatusPendingPublisherConfirmation,
	StatusCompleted,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(ValidStatuses, s)
}

// DeadlineSoonWindow is how close a deadline must be to count as "soon".
const DeadlineSoonWindow = 48 * time.Hour

// Attachment is a named link to a file.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Report is a message in the task's communication thread.
type Report struct {
	UserID           string       `json:"user_id"`
	UserName         string       `json:"user_name"`
	Text             string       `json:"text"`
	Files            []Attachment `json:"files"`
	IsPublisherReply bool         `json:"is_publisher_reply"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Challenge is an issue raised by the occupier against a task.
type Challenge struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusUpdate is a publisher-authored progress note.
type StatusUpdate struct {
	Text      string       `json:"text"`
	Files     []Attachment `json:"files"`
	CreatedAt time.Time    `json:"created_at"`
}

// Task is a paid unit of work published to the marketplace.
type Task struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Summary       string       `json:"summary"`
	Description   string       `json:"description"`
	Files         []Attachment `json:"files"`
	PublisherID   string       `json:"publisher_id"`
	PublisherName string       `json:"publisher_name"`
	PublishedAt   time.Time    `json:"published_at"`
	Deadline      time.Time    `json:"deadline"`

	Reward     decimal.Decimal `json:"reward"`
	RewardPaid decimal.Decimal `json:"reward_paid"`

	Status     Status `json:"status"`
	OccupiedBy *Party `json:"occupied_by"`

	Reports       []Report       `json:"reports"`
	Challenges    []Challenge    `json:"challenges"`
	StatusUpdates []StatusUpdate `json:"status_updates"`

	PublisherConfirmedAmount decimal.Decimal `json:"publisher_confirmed_amount"`
	OccupierConfirmedAmount  decimal.Decimal `json:"occupier_confirmed_amount"`
	IsCompletedByPublisher   bool            `json:"is_completed_by_publisher"`
	IsCompletedByOccupier    bool            `json:"is_completed_by_occupier"`

	// Version increments on every persisted mutation of this task.
	Version int64 `json:"version"`
}

// Publisher returns the publisher as a Party.
func (t Task) Publisher() Party {
	return Party{ID: t.PublisherID, Name: t.PublisherName}
}

// IsOccupiedBy reports whether userID is the task's occupier.
func (t Task) IsOccupiedBy(userID string) bool {
	return t.OccupiedBy != nil && t.OccupiedBy.ID == userID
}

// RemainingReward is reward minus what has already been paid.
func (t Task) RemainingReward() decimal.Decimal {
	return t.Reward.Sub(t.RewardPaid)
}

// DeadlineSoon reports whether the deadline falls within the next 48 hours.
// Past deadlines are not "soon".
func (t Task) DeadlineSoon(now time.Time) bool {
	if t.Deadline.IsZero() {
		return false
	}
	left := t.Deadline.Sub(now)
	return left > 0 && left < DeadlineSoonWindow
}

// Clone returns a deep copy so callers can never alias repository state.
func (t Task) Clone() Task {
	c := t
	c.Files = slices.Clone(t.Files)
	if t.OccupiedBy != nil {
		p := *t.OccupiedBy
		c.OccupiedBy = &p
	}
	c.Reports = make([]Report, len(t.Reports))
	for i, r := range t.Reports {
		r.Files = slices.Clone(r.Files)
		c.Reports[i] = r
	}
	c.Challenges = slices.Clone(t.Challenges)
	c.StatusUpdates = make([]StatusUpdate, len(t.StatusUpdates))
	for i, u := range t.StatusUpdates {
		u.Files = slices.Clone(u.Files)
		c.StatusUpdates[i] = u
	}
	return c
}
