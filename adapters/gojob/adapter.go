package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/hireloop/go-intake/core"
	"github.com/hireloop/go-intake/webhooks"
)

const (
	JobIDRetrySweep = "intake.sweep.retries"
	JobIDTranscribe = "intake.pipeline.transcribe"
)

const paramInterviewID = "interview_id"

// RetryPolicy bounds queue redelivery. The ledger already owns webhook retry
// semantics; this only keeps the job queue itself from looping forever on an
// operational failure.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Normalize clamps the nack options for one failed attempt.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// TranscriptionMessage builds the queue message for one completed recording.
// The idempotency key pins one transcription job per interview, so a
// redelivered recording.completed that slips past the handler guard still
// cannot fan out twice.
func TranscriptionMessage(interviewID string) *job.ExecutionMessage {
	interviewID = strings.TrimSpace(interviewID)
	return &job.ExecutionMessage{
		JobID:          JobIDTranscribe,
		Parameters:     map[string]any{paramInterviewID: interviewID},
		IdempotencyKey: "intake:transcribe:" + interviewID,
	}
}

// InterviewIDFromMessage extracts the interview parameter from a
// transcription message.
func InterviewIDFromMessage(msg *job.ExecutionMessage) (string, bool) {
	if msg == nil || msg.JobID != JobIDTranscribe {
		return "", false
	}
	raw, ok := msg.Parameters[paramInterviewID]
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return strings.TrimSpace(id), true
}

// SweepMessage builds the periodic retry sweep message.
func SweepMessage() *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDRetrySweep,
		IdempotencyKey: "intake:sweep:retries",
	}
}

// TranscriptionEnqueuer hands completed recordings to the pipeline queue.
type TranscriptionEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewTranscriptionEnqueuer(enqueuer queue.Enqueuer) *TranscriptionEnqueuer {
	return &TranscriptionEnqueuer{enqueuer: enqueuer}
}

func (t *TranscriptionEnqueuer) TriggerTranscription(ctx context.Context, interviewID string) error {
	if t == nil || t.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(interviewID) == "" {
		return fmt.Errorf("gojob: interview id is required")
	}
	return t.enqueuer.Enqueue(ctx, TranscriptionMessage(interviewID))
}

// RetrySweepWorker consumes sweep deliveries and redrives failed ledger rows
// through the intake processor.
type RetrySweepWorker struct {
	Dequeuer queue.Dequeuer
	Sweeper  *webhooks.Sweeper
	Policy   RetryPolicy
	Instr    *core.Instrumentation
}

func NewRetrySweepWorker(dequeuer queue.Dequeuer, sweeper *webhooks.Sweeper) *RetrySweepWorker {
	return &RetrySweepWorker{
		Dequeuer: dequeuer,
		Sweeper:  sweeper,
		Policy:   RetryPolicy{MaxAttempts: 5, MaxDelay: time.Minute, DeadLetterOnMax: true},
	}
}

// RunOnce pulls a single delivery and settles it. The sweep itself never
// fails per-event; only infrastructure errors nack the delivery.
func (w *RetrySweepWorker) RunOnce(ctx context.Context) error {
	if w == nil || w.Dequeuer == nil || w.Sweeper == nil {
		return fmt.Errorf("gojob: sweep worker requires dequeuer and sweeper")
	}
	delivery, err := w.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDRetrySweep {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		return delivery.Nack(ctx, w.Policy.Normalize(queue.NackOptions{
			DeadLetter: true,
			Reason:     fmt.Sprintf("unexpected job id %q", jobID),
		}, 0))
	}

	result, err := w.Sweeper.Sweep(ctx)
	if err != nil {
		return delivery.Nack(ctx, w.Policy.Normalize(queue.NackOptions{
			Requeue: true,
			Delay:   30 * time.Second,
			Reason:  err.Error(),
		}, 1))
	}
	if w.Instr != nil {
		w.Instr.IncCounter(ctx, "intake.sweep_jobs.total", 1, map[string]string{
			"outcome": "completed",
		})
		w.Instr.LogInfo(ctx, "sweep job completed", map[string]any{
			"scanned":   result.Scanned,
			"completed": result.Completed,
			"retried":   result.Retried,
			"dead":      result.Dead,
		})
	}
	return delivery.Ack(ctx)
}

// InstrumentedHook surfaces worker lifecycle events on the intake
// instrumentation stack.
type InstrumentedHook struct {
	Instr *core.Instrumentation
}

func NewInstrumentedHook(instr *core.Instrumentation) *InstrumentedHook {
	return &InstrumentedHook{Instr: instr}
}

func (h *InstrumentedHook) OnStart(ctx context.Context, event worker.Event) {
	h.observe(ctx, "start", event, nil)
}

func (h *InstrumentedHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.observe(ctx, "success", event, nil)
}

func (h *InstrumentedHook) OnFailure(ctx context.Context, event worker.Event) {
	h.observe(ctx, "failure", event, event.Err)
}

func (h *InstrumentedHook) OnRetry(ctx context.Context, event worker.Event) {
	h.observe(ctx, "retry", event, event.Err)
}

func (h *InstrumentedHook) observe(ctx context.Context, phase string, event worker.Event, cause error) {
	if h == nil || h.Instr == nil {
		return
	}
	jobID := ""
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		jobID = message.JobID
	}
	h.Instr.IncCounter(ctx, "intake.worker_events.total", 1, map[string]string{
		"phase":  phase,
		"job_id": jobID,
	})
	if cause == nil {
		return
	}
	h.Instr.LogError(ctx, "worker job failed", map[string]any{
		"phase":   phase,
		"job_id":  jobID,
		"attempt": event.Attempt,
		"error":   cause.Error(),
	})
}

var (
	_ core.PipelineTrigger = (*TranscriptionEnqueuer)(nil)
	_ worker.Hook          = (*InstrumentedHook)(nil)
)
