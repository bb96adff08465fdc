package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTranscriptRecorderAdvancesSubMachine(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mutator := &recordingByIDMutator{
		interview: Interview{
			ID:               "int-ts-1",
			TranscriptStatus: TranscriptStatusPending,
		},
	}
	recorder := NewTranscriptRecorder(mutator, nil)
	recorder.Now = func() time.Time { return now }

	if err := recorder.TranscriptStarted(context.Background(), "int-ts-1"); err != nil {
		t.Fatalf("transcript started: %v", err)
	}
	if mutator.interview.TranscriptStatus != TranscriptStatusProcessing {
		t.Fatalf("expected processing, got %q", mutator.interview.TranscriptStatus)
	}

	if err := recorder.TranscriptCompleted(context.Background(), "int-ts-1"); err != nil {
		t.Fatalf("transcript completed: %v", err)
	}
	if mutator.interview.TranscriptStatus != TranscriptStatusCompleted {
		t.Fatalf("expected completed, got %q", mutator.interview.TranscriptStatus)
	}
	if !mutator.interview.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at stamped with callback clock, got %v", mutator.interview.UpdatedAt)
	}
}

func TestTranscriptRecorderFailureReopensForRetry(t *testing.T) {
	metrics := &countingMetricsRecorder{}
	mutator := &recordingByIDMutator{
		interview: Interview{
			ID:               "int-ts-2",
			TranscriptStatus: TranscriptStatusProcessing,
		},
	}
	recorder := NewTranscriptRecorder(mutator, NewInstrumentation(nil, metrics))

	if err := recorder.TranscriptFailed(context.Background(), "int-ts-2", "audio stream truncated"); err != nil {
		t.Fatalf("transcript failed: %v", err)
	}
	if mutator.interview.TranscriptStatus != TranscriptStatusFailed {
		t.Fatalf("expected failed, got %q", mutator.interview.TranscriptStatus)
	}
	if metrics.counter("intake.transcript_callbacks.total") != 1 {
		t.Fatalf("expected callback counter")
	}

	// failed -> pending is the retry path
	if err := mutator.interview.AdvanceTranscript(TranscriptStatusPending, time.Now().UTC()); err != nil {
		t.Fatalf("expected failed transcript to be retryable: %v", err)
	}
}

func TestTranscriptRecorderRejectsOutOfOrderCallback(t *testing.T) {
	mutator := &recordingByIDMutator{
		interview: Interview{
			ID:               "int-ts-3",
			TranscriptStatus: TranscriptStatusPending,
		},
	}
	recorder := NewTranscriptRecorder(mutator, nil)

	err := recorder.TranscriptCompleted(context.Background(), "int-ts-3")
	if !errors.Is(err, ErrInvalidTranscriptStatusTransition) {
		t.Fatalf("expected transition rejection, got %v", err)
	}
	if mutator.interview.TranscriptStatus != TranscriptStatusPending {
		t.Fatalf("expected status untouched after rejection, got %q", mutator.interview.TranscriptStatus)
	}
}

func TestTranscriptRecorderPropagatesUnknownInterview(t *testing.T) {
	recorder := NewTranscriptRecorder(&recordingByIDMutator{
		interview: Interview{ID: "int-ts-4"},
	}, nil)

	err := recorder.TranscriptStarted(context.Background(), "int-unknown")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found propagation, got %v", err)
	}
}

type recordingByIDMutator struct {
	interview Interview
}

func (m *recordingByIDMutator) MutateByID(_ context.Context, interviewID string, fn func(*Interview) error) (Interview, error) {
	if interviewID != m.interview.ID {
		return Interview{}, NewNotFoundError("transcripts test: unknown interview", nil)
	}
	mutated := m.interview
	if err := fn(&mutated); err != nil {
		return Interview{}, err
	}
	m.interview = mutated
	return mutated, nil
}
