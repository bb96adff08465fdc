package meet

import (
	"context"
	"fmt"
	"time"

	"github.com/hireloop/go-intake/core"
	"github.com/hireloop/go-intake/inbound"
)

// Handler applies meeting and recording lifecycle events to interviews. All
// mutations run through InterviewStore.Mutate so the status write, the
// bookkeeping fields, and any recording metadata land in one transaction.
type Handler struct {
	Interviews core.InterviewStore
	Pipeline   core.PipelineTrigger
	Instr      *core.Instrumentation
	Now        func() time.Time
}

func NewHandler(interviews core.InterviewStore, pipeline core.PipelineTrigger, instr *core.Instrumentation) *Handler {
	return &Handler{
		Interviews: interviews,
		Pipeline:   pipeline,
		Instr:      instr,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Register wires every meeting and recording event type into the dispatcher.
func (h *Handler) Register(dispatcher *inbound.Dispatcher) error {
	for _, eventType := range EventTypes() {
		if err := dispatcher.Register(core.ProviderMeet, eventType, inbound.HandlerFunc(h.Handle)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) Handle(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error) {
	switch env.EventType {
	case EventMeetingStarted:
		return h.applyStatus(ctx, env, core.InterviewStatusInProgress)
	case EventMeetingEnded:
		return h.applyMeetingEnded(ctx, env)
	case EventRecordingStarted:
		return h.applyRecording(ctx, env, core.RecordingStatusInProgress)
	case EventRecordingStopped:
		return h.applyRecording(ctx, env, core.RecordingStatusProcessing)
	case EventRecordingPaused, EventRecordingResumed:
		return h.applyBookkeeping(ctx, env)
	case EventRecordingCompleted:
		return h.applyRecordingCompleted(ctx, env)
	default:
		return core.HandlerResult{
			Outcome: core.OutcomeUnknownType,
			Reason:  fmt.Sprintf("meet: unhandled event type %q", env.EventType),
		}, nil
	}
}

func (h *Handler) applyStatus(ctx context.Context, env core.EventEnvelope, status core.InterviewStatus) (core.HandlerResult, error) {
	rejected := ""
	_, err := h.Interviews.Mutate(ctx, env.EntityRef, func(interview *core.Interview) error {
		h.stamp(interview, env)
		if err := interview.TransitionTo(status, h.now()); err != nil {
			// Keep the bookkeeping write; the status stays untouched.
			rejected = err.Error()
		}
		return nil
	})
	if result, retErr, handled := h.settle(env, err, rejected); handled {
		return result, retErr
	}
	return core.HandlerResult{Outcome: core.OutcomeApplied}, nil
}

// applyMeetingEnded completes the interview only from in_progress. A late or
// duplicate "ended" event against a cancelled or already-completed interview
// updates bookkeeping only; it must never resurrect terminal state.
func (h *Handler) applyMeetingEnded(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error) {
	outcome := core.OutcomeApplied
	reason := ""
	_, err := h.Interviews.Mutate(ctx, env.EntityRef, func(interview *core.Interview) error {
		h.stamp(interview, env)
		if interview.Status != core.InterviewStatusInProgress {
			outcome = core.OutcomeIgnored
			reason = fmt.Sprintf("meeting ended while interview is %s", interview.Status)
			return nil
		}
		return interview.TransitionTo(core.InterviewStatusCompleted, h.now())
	})
	if result, retErr, handled := h.settle(env, err, ""); handled {
		return result, retErr
	}
	return core.HandlerResult{Outcome: outcome, Reason: reason}, nil
}

func (h *Handler) applyRecording(ctx context.Context, env core.EventEnvelope, status core.RecordingStatus) (core.HandlerResult, error) {
	rejected := ""
	_, err := h.Interviews.Mutate(ctx, env.EntityRef, func(interview *core.Interview) error {
		h.stamp(interview, env)
		if err := interview.AdvanceRecording(status, h.now()); err != nil {
			rejected = err.Error()
		}
		return nil
	})
	if result, retErr, handled := h.settle(env, err, rejected); handled {
		return result, retErr
	}
	return core.HandlerResult{Outcome: core.OutcomeApplied}, nil
}

func (h *Handler) applyBookkeeping(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error) {
	_, err := h.Interviews.Mutate(ctx, env.EntityRef, func(interview *core.Interview) error {
		h.stamp(interview, env)
		return nil
	})
	if result, retErr, handled := h.settle(env, err, ""); handled {
		return result, retErr
	}
	return core.HandlerResult{Outcome: core.OutcomeApplied}, nil
}

// applyRecordingCompleted publishes the primary artifact and queues
// transcription. The pipeline trigger fires once: duplicates arriving after
// recordingStatus is already completed skip it.
func (h *Handler) applyRecordingCompleted(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error) {
	details, ok := env.Details.(RecordingCompletedDetails)
	if !ok {
		return core.HandlerResult{}, core.NewMalformedPayloadError(
			"meet: recording.completed event carries no artifact details", nil,
		)
	}

	triggered := false
	interview, err := h.Interviews.Mutate(ctx, env.EntityRef, func(interview *core.Interview) error {
		h.stamp(interview, env)
		alreadyCompleted := interview.RecordingStatus == core.RecordingStatusCompleted
		if err := interview.AdvanceRecording(core.RecordingStatusCompleted, h.now()); err != nil {
			return err
		}
		if file, found := details.PrimaryFile(); found {
			interview.RecordingURL = file.DownloadURL
			interview.RecordingDurationSeconds = file.DurationSeconds()
		}
		if !alreadyCompleted {
			triggered = true
			if interview.TranscriptStatus == core.TranscriptStatusNone {
				return interview.AdvanceTranscript(core.TranscriptStatusPending, h.now())
			}
		}
		return nil
	})
	if result, retErr, handled := h.settle(env, err, ""); handled {
		return result, retErr
	}

	if triggered && h.Pipeline != nil {
		if err := h.Pipeline.TriggerTranscription(ctx, interview.ID); err != nil && h.Instr != nil {
			h.Instr.LogError(ctx, "transcription trigger dispatch failed", map[string]any{
				"interview_id": interview.ID,
				"error":        err.Error(),
			})
		}
	}
	return core.HandlerResult{Outcome: core.OutcomeApplied}, nil
}

// settle folds store errors and transition rejections into handler results.
// handled=true short-circuits the caller: unknown entities and rejected
// transitions are terminal no-ops with a nil error, anything else keeps the
// original error for the retry scheduler.
func (h *Handler) settle(env core.EventEnvelope, err error, rejectedReason string) (core.HandlerResult, error, bool) {
	if err != nil {
		if core.IsNotFound(err) {
			return core.HandlerResult{
				Outcome: core.OutcomeUnknownEntity,
				Reason:  fmt.Sprintf("no interview tracks meeting %q", env.EntityRef),
			}, nil, true
		}
		return core.HandlerResult{}, err, true
	}
	if rejectedReason != "" {
		return core.HandlerResult{Outcome: core.OutcomeIgnored, Reason: rejectedReason}, nil, true
	}
	return core.HandlerResult{}, nil, false
}

func (h *Handler) stamp(interview *core.Interview, env core.EventEnvelope) {
	interview.LastWebhookEventType = env.EventType
	receivedAt := h.now()
	interview.LastWebhookReceivedAt = &receivedAt
}

func (h *Handler) now() time.Time {
	if h != nil && h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}
