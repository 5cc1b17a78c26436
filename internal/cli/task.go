package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ledger"
	"github.com/roach88/taskmarket/internal/lifecycle"
	"github.com/roach88/taskmarket/internal/market"
	"github.com/roach88/taskmarket/internal/tasks"
)

// asCurrentUser runs fn as the logged-in user.
func (o *RootOptions) asCurrentUser(cmd *cobra.Command, fn func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error) error {
	out := newFormatter(cmd, o)
	return o.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
		me, err := m.Users.Current(ctx)
		if err != nil {
			return out.Fail(err)
		}
		return fn(ctx, m, me, out)
	})
}

// NewTaskCommand creates the task command group.
func NewTaskCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Publish, claim and complete tasks",
	}
	cmd.AddCommand(newTaskCreateCommand(opts))
	cmd.AddCommand(newTaskListCommand(opts))
	cmd.AddCommand(newTaskShowCommand(opts))
	cmd.AddCommand(newTaskUpdateCommand(opts))
	cmd.AddCommand(newTaskDeleteCommand(opts))

	cmd.AddCommand(newTransitionCommand(opts, "claim", "Take a published task", func(ctx context.Context, m *market.Market, me domain.User, id string) (domain.Task, error) {
		return m.Tasks.Claim(ctx, id, me.Party())
	}))
	cmd.AddCommand(newTransitionCommand(opts, "complete", "Hand your finished work to the publisher", func(ctx context.Context, m *market.Market, me domain.User, id string) (domain.Task, error) {
		return m.Tasks.MarkComplete(ctx, id, me.ID)
	}))
	cmd.AddCommand(newTransitionCommand(opts, "confirm", "Accept the work and settle the reward", func(ctx context.Context, m *market.Market, me domain.User, id string) (domain.Task, error) {
		return m.ConfirmCompletion(ctx, id, me.ID)
	}))
	cmd.AddCommand(newTransitionCommand(opts, "revise", "Send the work back to the occupier", func(ctx context.Context, m *market.Market, me domain.User, id string) (domain.Task, error) {
		return m.Tasks.RequestRevision(ctx, id, me.ID)
	}))

	cmd.AddCommand(newEntryCommand(opts, "report", "Post a message to the task's report thread", func(ctx context.Context, m *market.Market, me domain.User, id, text string) (domain.Task, error) {
		return m.Tasks.AddReport(ctx, id, me.Party(), text, nil)
	}))
	cmd.AddCommand(newEntryCommand(opts, "challenge", "Raise an issue against the task", func(ctx context.Context, m *market.Market, me domain.User, id, text string) (domain.Task, error) {
		return m.Tasks.AddChallenge(ctx, id, me.Party(), text)
	}))
	cmd.AddCommand(newEntryCommand(opts, "status", "Post a progress note (publisher only)", func(ctx context.Context, m *market.Market, me domain.User, id, text string) (domain.Task, error) {
		return m.PostStatusUpdate(ctx, id, me.ID, text, nil)
	}))
	return cmd
}

func newTaskCreateCommand(opts *RootOptions) *cobra.Command {
	var title, summary, description, reward, deadline string
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Publish a new task",
		Example: `  taskmarket task create --title "Design logo" --reward 100 --deadline 2024-03-01`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				amount, err := parseAmount(reward)
				if err != nil {
					return out.Fail(err)
				}
				due, err := parseDeadline(deadline)
				if err != nil {
					return out.Fail(err)
				}
				t, err := m.Tasks.Create(ctx, tasks.NewTask{
					Title:       title,
					Summary:     summary,
					Description: description,
					Publisher:   me.Party(),
					Deadline:    due,
					Reward:      amount,
				})
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "Published %s (%s)\n", t.ID, t.Title)
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title (required)")
	cmd.Flags().StringVar(&summary, "summary", "", "one-line summary")
	cmd.Flags().StringVar(&description, "description", "", "full description")
	cmd.Flags().StringVar(&reward, "reward", "0", "reward amount")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC 3339 or YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskListCommand(opts *RootOptions) *cobra.Command {
	var status string
	var published, occupied bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				f := tasks.Filter{Status: domain.Status(status)}
				if f.Status != "" && !f.Status.Valid() {
					return out.Fail(fmt.Errorf("%w: unknown status %q", tasks.ErrInvalidTask, status))
				}
				if published || occupied {
					me, err := m.Users.Current(ctx)
					if err != nil {
						return out.Fail(err)
					}
					if published {
						f.PublisherID = me.ID
					}
					if occupied {
						f.OccupierID = me.ID
					}
				}
				list := m.Tasks.List(f)
				return out.Render(list, func(w io.Writer) { printTaskTable(w, list, m.Now()) })
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only tasks with this status")
	cmd.Flags().BoolVar(&published, "published", false, "only tasks you published")
	cmd.Flags().BoolVar(&occupied, "occupied", false, "only tasks you occupy")
	return cmd
}

func newTaskShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its threads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			return opts.withMarket(cmd, func(ctx context.Context, m *market.Market) error {
				t, err := m.Tasks.Get(args[0])
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(t, func(w io.Writer) { printTask(w, t, m.Now()) })
			})
		},
	}
}

func newTaskUpdateCommand(opts *RootOptions) *cobra.Command {
	var title, summary, description, deadline string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Edit a task you published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				var p tasks.Patch
				if cmd.Flags().Changed("title") {
					p.Title = &title
				}
				if cmd.Flags().Changed("summary") {
					p.Summary = &summary
				}
				if cmd.Flags().Changed("description") {
					p.Description = &description
				}
				if cmd.Flags().Changed("deadline") {
					due, err := parseDeadline(deadline)
					if err != nil {
						return out.Fail(err)
					}
					p.Deadline = &due
				}
				t, err := m.UpdateTask(ctx, args[0], me.ID, p)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "Updated %s (version %d)\n", t.ID, t.Version)
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&summary, "summary", "", "new summary")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new deadline (RFC 3339 or YYYY-MM-DD)")
	return cmd
}

func newTaskDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task you published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				if err := m.DeleteTask(ctx, args[0], me.ID); err != nil {
					return out.Fail(err)
				}
				return out.Render(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %s\n", args[0])
				})
			})
		},
	}
}

type transitionFunc func(ctx context.Context, m *market.Market, me domain.User, id string) (domain.Task, error)

func newTransitionCommand(opts *RootOptions, use, short string, fn transitionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				t, err := fn(ctx, m, me, args[0])
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "%s is now %s\n", t.ID, t.Status)
				})
			})
		},
	}
}

type entryFunc func(ctx context.Context, m *market.Market, me domain.User, id, text string) (domain.Task, error)

func newEntryCommand(opts *RootOptions, use, short string, fn entryFunc) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.asCurrentUser(cmd, func(ctx context.Context, m *market.Market, me domain.User, out *OutputFormatter) error {
				t, err := fn(ctx, m, me, args[0], text)
				if err != nil {
					return out.Fail(err)
				}
				return out.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "Posted %s on %s\n", use, t.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message text (required)")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

// parseDeadline accepts RFC 3339 timestamps and bare dates. Empty means
// no deadline.
func parseDeadline(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: deadline %q is neither RFC 3339 nor YYYY-MM-DD", tasks.ErrInvalidTask, s)
	}
	return t, nil
}

func formatDeadline(t domain.Task, now time.Time) string {
	if t.Deadline.IsZero() {
		return "-"
	}
	s := t.Deadline.Format(time.DateOnly)
	if t.DeadlineSoon(now) {
		s += " (soon)"
	}
	return s
}

func printTaskTable(w io.Writer, list []domain.Task, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tREWARD\tPAID\tDEADLINE\tTITLE")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Reward, t.RewardPaid, formatDeadline(t, now), t.Title)
	}
	tw.Flush()
}

func printTask(w io.Writer, t domain.Task, now time.Time) {
	fmt.Fprintf(w, "%s  %s\n", t.ID, t.Title)
	if t.Summary != "" {
		fmt.Fprintf(w, "  %s\n", t.Summary)
	}
	fmt.Fprintf(w, "  status:    %s\n", t.Status)
	fmt.Fprintf(w, "  publisher: %s (%s)\n", t.PublisherName, t.PublisherID)
	if t.OccupiedBy != nil {
		fmt.Fprintf(w, "  occupier:  %s (%s)\n", t.OccupiedBy.Name, t.OccupiedBy.ID)
	}
	fmt.Fprintf(w, "  reward:    %s (paid %s, publisher payment %s, occupier payment %s)\n",
		t.Reward, t.RewardPaid, ledger.StateOf(t, ledger.RolePublisher), ledger.StateOf(t, ledger.RoleOccupier))
	fmt.Fprintf(w, "  deadline:  %s\n", formatDeadline(t, now))
	if next := lifecycle.Allowed(t.Status); len(next) > 0 {
		names := make([]string, len(next))
		for i, ev := range next {
			names[i] = string(ev)
		}
		fmt.Fprintf(w, "  next:      %s\n", strings.Join(names, ", "))
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}

	if len(t.StatusUpdates) > 0 {
		fmt.Fprintln(w, "\nStatus updates:")
		for _, u := range t.StatusUpdates {
			fmt.Fprintf(w, "  [%s] %s\n", u.CreatedAt.Format(time.DateTime), u.Text)
		}
	}
	if len(t.Reports) > 0 {
		fmt.Fprintln(w, "\nReports:")
		for _, r := range t.Reports {
			who := r.UserName
			if r.IsPublisherReply {
				who += " (publisher)"
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", r.CreatedAt.Format(time.DateTime), who, r.Text)
		}
	}
	if len(t.Challenges) > 0 {
		fmt.Fprintln(w, "\nChallenges:")
		for _, c := range t.Challenges {
			fmt.Fprintf(w, "  [%s] %s: %s\n", c.CreatedAt.Format(time.DateTime), c.UserName, c.Text)
		}
	}
}
