package core

import (
	"context"
	"fmt"
	"time"
)

// TranscriptRecorder advances the transcript sub-machine when the
// downstream pipeline reports progress. Guards live in AdvanceTranscript;
// out-of-order callbacks are rejected there, not here.
type TranscriptRecorder struct {
	Interviews InterviewByIDMutator
	Instr      *Instrumentation
	Now        func() time.Time
}

func NewTranscriptRecorder(interviews InterviewByIDMutator, instr *Instrumentation) *TranscriptRecorder {
	return &TranscriptRecorder{
		Interviews: interviews,
		Instr:      instr,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (r *TranscriptRecorder) TranscriptStarted(ctx context.Context, interviewID string) error {
	return r.advance(ctx, interviewID, TranscriptStatusProcessing, "")
}

func (r *TranscriptRecorder) TranscriptCompleted(ctx context.Context, interviewID string) error {
	return r.advance(ctx, interviewID, TranscriptStatusCompleted, "")
}

func (r *TranscriptRecorder) TranscriptFailed(ctx context.Context, interviewID string, reason string) error {
	return r.advance(ctx, interviewID, TranscriptStatusFailed, reason)
}

func (r *TranscriptRecorder) advance(ctx context.Context, interviewID string, status TranscriptStatus, reason string) error {
	if r == nil || r.Interviews == nil {
		return fmt.Errorf("core: transcript recorder is not configured")
	}
	_, err := r.Interviews.MutateByID(ctx, interviewID, func(interview *Interview) error {
		return interview.AdvanceTranscript(status, r.now())
	})
	if err != nil {
		return err
	}
	if reason != "" && r.Instr != nil {
		r.Instr.LogWarn(ctx, "transcription failed downstream", map[string]any{
			"interview_id": interviewID,
			"reason":       reason,
		})
	}
	if r.Instr != nil {
		r.Instr.IncCounter(ctx, "intake.transcript_callbacks.total", 1, map[string]string{
			"status": string(status),
		})
	}
	return nil
}

func (r *TranscriptRecorder) now() time.Time {
	if r == nil || r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

var _ TranscriptSink = (*TranscriptRecorder)(nil)
