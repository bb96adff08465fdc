package core

import (
	"errors"
	"testing"
	"time"
)

func TestInterviewTransitionTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		from    InterviewStatus
		to      InterviewStatus
		allowed bool
	}{
		{"scheduled to in_progress", InterviewStatusScheduled, InterviewStatusInProgress, true},
		{"scheduled to cancelled", InterviewStatusScheduled, InterviewStatusCancelled, true},
		{"scheduled to completed", InterviewStatusScheduled, InterviewStatusCompleted, false},
		{"in_progress to completed", InterviewStatusInProgress, InterviewStatusCompleted, true},
		{"in_progress to cancelled", InterviewStatusInProgress, InterviewStatusCancelled, true},
		{"in_progress to scheduled", InterviewStatusInProgress, InterviewStatusScheduled, false},
		{"completed is terminal", InterviewStatusCompleted, InterviewStatusInProgress, false},
		{"completed cannot cancel", InterviewStatusCompleted, InterviewStatusCancelled, false},
		{"cancelled is terminal", InterviewStatusCancelled, InterviewStatusInProgress, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			interview := &Interview{Status: tc.from}
			err := interview.TransitionTo(tc.to, now)
			if tc.allowed {
				if err != nil {
					t.Fatalf("expected transition %s -> %s to be allowed: %v", tc.from, tc.to, err)
				}
				if interview.Status != tc.to {
					t.Fatalf("expected status %s, got %s", tc.to, interview.Status)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected transition %s -> %s to be rejected", tc.from, tc.to)
			}
			if !errors.Is(err, ErrInvalidInterviewStatusTransition) {
				t.Fatalf("expected transition error, got %v", err)
			}
			if interview.Status != tc.from {
				t.Fatalf("rejected transition must not mutate status, got %s", interview.Status)
			}
		})
	}
}

func TestInterviewTransitionToSameStatusIsNoop(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	interview := &Interview{Status: InterviewStatusCompleted}
	if err := interview.TransitionTo(InterviewStatusCompleted, now); err != nil {
		t.Fatalf("same-status transition should be accepted: %v", err)
	}
	if !interview.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at to be touched")
	}
}

func TestRecordingSubMachineIsMonotonic(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	interview := &Interview{RecordingStatus: RecordingStatusNone}

	for _, status := range []RecordingStatus{
		RecordingStatusInProgress,
		RecordingStatusProcessing,
		RecordingStatusCompleted,
	} {
		if err := interview.AdvanceRecording(status, now); err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}

	interview = &Interview{RecordingStatus: RecordingStatusProcessing}
	if err := interview.AdvanceRecording(RecordingStatusInProgress, now); err == nil {
		t.Fatalf("expected backwards recording transition to be rejected")
	}
}

func TestRecordingCompletedAlwaysWritesCompleted(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	interview := &Interview{RecordingStatus: RecordingStatusNone}
	if err := interview.AdvanceRecording(RecordingStatusCompleted, now); err != nil {
		t.Fatalf("completed must always be accepted: %v", err)
	}
	if interview.RecordingStatus != RecordingStatusCompleted {
		t.Fatalf("expected completed, got %s", interview.RecordingStatus)
	}
}

func TestTranscriptSubMachine(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	interview := &Interview{TranscriptStatus: TranscriptStatusNone}

	steps := []TranscriptStatus{
		TranscriptStatusPending,
		TranscriptStatusProcessing,
		TranscriptStatusCompleted,
	}
	for _, status := range steps {
		if err := interview.AdvanceTranscript(status, now); err != nil {
			t.Fatalf("advance transcript to %s: %v", status, err)
		}
	}

	if err := interview.AdvanceTranscript(TranscriptStatusPending, now); err == nil {
		t.Fatalf("completed transcript must be terminal")
	}

	interview = &Interview{TranscriptStatus: TranscriptStatusFailed}
	if err := interview.AdvanceTranscript(TranscriptStatusPending, now); err != nil {
		t.Fatalf("failed transcript should allow re-queue: %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  A@X.Com "); got != "a@x.com" {
		t.Fatalf("expected normalized email, got %q", got)
	}
}
