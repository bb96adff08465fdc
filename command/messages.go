package command

import (
	"fmt"
	"strings"
	"time"
)

const (
	TypeReplayEvent         = "intake.command.event.replay"
	TypeCancelInterview     = "intake.command.interview.cancel"
	TypeRescheduleInterview = "intake.command.interview.reschedule"
)

// ReplayEventMessage requeues a dead-lettered ledger row for the next sweep.
type ReplayEventMessage struct {
	LedgerID string
}

func (ReplayEventMessage) Type() string { return TypeReplayEvent }

func (m ReplayEventMessage) Validate() error {
	if strings.TrimSpace(m.LedgerID) == "" {
		return fmt.Errorf("command: ledger id is required")
	}
	return nil
}

type CancelInterviewMessage struct {
	MeetingRef string
	Reason     string
}

func (CancelInterviewMessage) Type() string { return TypeCancelInterview }

func (m CancelInterviewMessage) Validate() error {
	if strings.TrimSpace(m.MeetingRef) == "" {
		return fmt.Errorf("command: meeting ref is required")
	}
	return nil
}

type RescheduleInterviewMessage struct {
	MeetingRef      string
	ScheduledAt     time.Time
	DurationMinutes int
}

func (RescheduleInterviewMessage) Type() string { return TypeRescheduleInterview }

func (m RescheduleInterviewMessage) Validate() error {
	if strings.TrimSpace(m.MeetingRef) == "" {
		return fmt.Errorf("command: meeting ref is required")
	}
	if m.ScheduledAt.IsZero() {
		return fmt.Errorf("command: scheduled at is required")
	}
	if m.DurationMinutes <= 0 {
		return fmt.Errorf("command: invalid duration minutes: must be positive")
	}
	return nil
}
