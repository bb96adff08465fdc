package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/hireloop/go-intake/core"
)

const DefaultSweepBatch = 50

// Sweeper drains retry-due ledger rows through the processor. It is meant to
// run on a fixed schedule; each sweep claims and re-dispatches up to Batch
// rows, oldest first, so a burst of failures cannot starve older events.
type Sweeper struct {
	Ledger    core.EventLedger
	Processor *Processor
	Instr     *core.Instrumentation

	Batch int
	Now   func() time.Time
}

func NewSweeper(ledger core.EventLedger, processor *Processor) *Sweeper {
	return &Sweeper{
		Ledger:    ledger,
		Processor: processor,
		Batch:     DefaultSweepBatch,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SweepResult reports one sweep pass.
type SweepResult struct {
	Scanned   int
	Completed int
	Retried   int
	Dead      int
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if s == nil || s.Ledger == nil || s.Processor == nil {
		return SweepResult{}, fmt.Errorf("webhooks: sweeper requires ledger and processor")
	}

	due, err := s.Ledger.ListRetryDue(ctx, s.now(), s.batch())
	if err != nil {
		return SweepResult{}, core.NewTransientError(err, "webhooks: list retry due failed", nil)
	}

	result := SweepResult{Scanned: len(due)}
	for _, event := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		out, err := s.Processor.ProcessStored(ctx, event)
		if err != nil {
			// Infrastructure failure mid-claim; leave the row for the next
			// sweep rather than aborting the whole batch.
			s.logSweepError(ctx, event, err)
			continue
		}
		switch fmt.Sprint(out.Metadata["status"]) {
		case string(core.EventStatusCompleted):
			result.Completed++
		case string(core.EventStatusDeadLetter):
			result.Dead++
		default:
			result.Retried++
		}
	}

	if s.Instr != nil && result.Scanned > 0 {
		s.Instr.LogInfo(ctx, "retry sweep finished", map[string]any{
			"scanned":   result.Scanned,
			"completed": result.Completed,
			"retried":   result.Retried,
			"dead":      result.Dead,
		})
		s.Instr.IncCounter(ctx, "intake.sweep.completed.total", int64(result.Completed), nil)
		s.Instr.IncCounter(ctx, "intake.sweep.dead_letter.total", int64(result.Dead), nil)
	}
	return result, nil
}

func (s *Sweeper) logSweepError(ctx context.Context, event core.WebhookEvent, cause error) {
	if s.Instr == nil {
		return
	}
	s.Instr.LogError(ctx, "sweep redelivery failed", map[string]any{
		"provider": string(event.Provider),
		"event_id": event.EventID,
		"error":    cause.Error(),
	})
}

func (s *Sweeper) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Sweeper) batch() int {
	if s != nil && s.Batch > 0 {
		return s.Batch
	}
	return DefaultSweepBatch
}
