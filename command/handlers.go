package command

import (
	"context"
	"fmt"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/hireloop/go-intake/core"
)

// EventReplayer is the slice of the ledger the replay command needs.
type EventReplayer interface {
	Requeue(ctx context.Context, ledgerID string) error
}

// InterviewMutator loads, mutates, and persists one interview atomically.
type InterviewMutator interface {
	Mutate(ctx context.Context, meetingRef string, fn func(*core.Interview) error) (core.Interview, error)
}

// ReplayEventCommand moves a dead-lettered event back into the retry sweep.
type ReplayEventCommand struct {
	ledger EventReplayer
}

func NewReplayEventCommand(ledger EventReplayer) *ReplayEventCommand {
	return &ReplayEventCommand{ledger: ledger}
}

func (c *ReplayEventCommand) Execute(ctx context.Context, msg ReplayEventMessage) error {
	if c == nil || c.ledger == nil {
		return commandDependencyError("command: event ledger is required")
	}
	return c.ledger.Requeue(ctx, msg.LedgerID)
}

// CancelInterviewCommand cancels an interview from the CRM side. The webhook
// handlers see the cancelled state afterwards and ignore stale provider
// events against it.
type CancelInterviewCommand struct {
	interviews InterviewMutator
	now        func() time.Time
}

func NewCancelInterviewCommand(interviews InterviewMutator) *CancelInterviewCommand {
	return &CancelInterviewCommand{
		interviews: interviews,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *CancelInterviewCommand) Execute(ctx context.Context, msg CancelInterviewMessage) error {
	if c == nil || c.interviews == nil {
		return commandDependencyError("command: interview store is required")
	}
	out, err := c.interviews.Mutate(ctx, msg.MeetingRef, func(interview *core.Interview) error {
		if err := interview.TransitionTo(core.InterviewStatusCancelled, c.clock()); err != nil {
			return core.NewTransitionRejectedError(err.Error(), map[string]any{
				"meeting_ref": msg.MeetingRef,
				"status":      string(interview.Status),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func (c *CancelInterviewCommand) clock() time.Time {
	if c != nil && c.now != nil {
		return c.now().UTC()
	}
	return time.Now().UTC()
}

// RescheduleInterviewCommand moves a scheduled interview to a new slot.
// Anything past scheduled is pinned to its provider-driven lifecycle and
// rejects the reschedule.
type RescheduleInterviewCommand struct {
	interviews InterviewMutator
	now        func() time.Time
}

func NewRescheduleInterviewCommand(interviews InterviewMutator) *RescheduleInterviewCommand {
	return &RescheduleInterviewCommand{
		interviews: interviews,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *RescheduleInterviewCommand) Execute(ctx context.Context, msg RescheduleInterviewMessage) error {
	if c == nil || c.interviews == nil {
		return commandDependencyError("command: interview store is required")
	}
	out, err := c.interviews.Mutate(ctx, msg.MeetingRef, func(interview *core.Interview) error {
		if interview.Status != core.InterviewStatusScheduled {
			return core.NewTransitionRejectedError(
				fmt.Sprintf("command: cannot reschedule a %s interview", interview.Status),
				map[string]any{
					"meeting_ref": msg.MeetingRef,
					"status":      string(interview.Status),
				},
			)
		}
		scheduledAt := msg.ScheduledAt.UTC()
		interview.ScheduledAt = &scheduledAt
		interview.DurationMinutes = msg.DurationMinutes
		interview.UpdatedAt = c.clock()
		return nil
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func (c *RescheduleInterviewCommand) clock() time.Time {
	if c != nil && c.now != nil {
		return c.now().UTC()
	}
	return time.Now().UTC()
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
