package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidProvider                    = errors.New("core: invalid provider")
	ErrInvalidInterviewStatusTransition   = errors.New("core: invalid interview status transition")
	ErrInvalidRecordingStatusTransition   = errors.New("core: invalid recording status transition")
	ErrInvalidTranscriptStatusTransition  = errors.New("core: invalid transcript status transition")
	ErrInvalidEventStatusTransition       = errors.New("core: invalid webhook event status transition")
	ErrInterviewNotFound                  = errors.New("core: interview not found")
	ErrCampaignSendNotFound               = errors.New("core: campaign send not found")
	ErrEventNotFound                      = errors.New("core: webhook event not found")
)

type Provider string

const (
	ProviderMeet Provider = "meet"
	ProviderMail Provider = "mail"
)

func (p Provider) Validate() error {
	switch p {
	case ProviderMeet, ProviderMail:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, string(p))
	}
}

type EventStatus string

const (
	EventStatusReceived   EventStatus = "received"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
	EventStatusDeadLetter EventStatus = "dead_letter"
)

// WebhookEvent is one row of the idempotency ledger. Rows are never deleted;
// the ledger doubles as the audit trail for every externally observed event.
type WebhookEvent struct {
	ID             string
	Provider       Provider
	EventType      string
	EventID        string
	EntityRef      string
	Payload        []byte
	Status         EventStatus
	Attempts       int
	MaxAttempts    int
	LastAttemptAt  *time.Time
	NextRetryAt    *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type InterviewStatus string

const (
	InterviewStatusScheduled  InterviewStatus = "scheduled"
	InterviewStatusInProgress InterviewStatus = "in_progress"
	InterviewStatusCompleted  InterviewStatus = "completed"
	InterviewStatusCancelled  InterviewStatus = "cancelled"
)

type RecordingStatus string

const (
	RecordingStatusNone       RecordingStatus = "none"
	RecordingStatusInProgress RecordingStatus = "in_progress"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusCompleted  RecordingStatus = "completed"
)

type TranscriptStatus string

const (
	TranscriptStatusNone       TranscriptStatus = "none"
	TranscriptStatusPending    TranscriptStatus = "pending"
	TranscriptStatusProcessing TranscriptStatus = "processing"
	TranscriptStatusCompleted  TranscriptStatus = "completed"
	TranscriptStatusFailed     TranscriptStatus = "failed"
)

type Interview struct {
	ID                       string
	CompanyID                string
	Status                   InterviewStatus
	RecordingStatus          RecordingStatus
	TranscriptStatus         TranscriptStatus
	ExternalMeetingRef       string
	ScheduledAt              *time.Time
	DurationMinutes          int
	RecordingURL             string
	RecordingDurationSeconds int
	LastWebhookEventType     string
	LastWebhookReceivedAt    *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// TransitionTo moves the interview through the lifecycle transition table.
// Illegal transitions are rejected without mutating the receiver.
func (i *Interview) TransitionTo(status InterviewStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if i.Status == status {
		i.UpdatedAt = now
		return nil
	}
	if !interviewTransitionAllowed(i.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidInterviewStatusTransition, i.Status, status)
	}
	i.Status = status
	i.UpdatedAt = now
	return nil
}

func interviewTransitionAllowed(current, next InterviewStatus) bool {
	allowed := map[InterviewStatus]map[InterviewStatus]struct{}{
		InterviewStatusScheduled: {
			InterviewStatusInProgress: {},
			InterviewStatusCancelled:  {},
		},
		InterviewStatusInProgress: {
			InterviewStatusCompleted: {},
			InterviewStatusCancelled: {},
		},
		InterviewStatusCompleted: {},
		InterviewStatusCancelled: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// AdvanceRecording moves the recording sub-machine forward. The machine is
// monotonic: a terminal "completed" write is always accepted, everything else
// is rejected when it would move backwards.
func (i *Interview) AdvanceRecording(status RecordingStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if status == RecordingStatusCompleted {
		i.RecordingStatus = RecordingStatusCompleted
		i.UpdatedAt = now
		return nil
	}
	if recordingRank(status) < recordingRank(i.RecordingStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRecordingStatusTransition, i.RecordingStatus, status)
	}
	i.RecordingStatus = status
	i.UpdatedAt = now
	return nil
}

func recordingRank(status RecordingStatus) int {
	switch status {
	case RecordingStatusInProgress:
		return 1
	case RecordingStatusProcessing:
		return 2
	case RecordingStatusCompleted:
		return 3
	default:
		return 0
	}
}

func (i *Interview) AdvanceTranscript(status TranscriptStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if !transcriptTransitionAllowed(i.TranscriptStatus, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTranscriptStatusTransition, i.TranscriptStatus, status)
	}
	i.TranscriptStatus = status
	i.UpdatedAt = now
	return nil
}

func transcriptTransitionAllowed(current, next TranscriptStatus) bool {
	if current == next {
		return true
	}
	allowed := map[TranscriptStatus]map[TranscriptStatus]struct{}{
		TranscriptStatusNone: {
			TranscriptStatusPending: {},
		},
		TranscriptStatusPending: {
			TranscriptStatusProcessing: {},
			TranscriptStatusFailed:     {},
		},
		TranscriptStatusProcessing: {
			TranscriptStatusCompleted: {},
			TranscriptStatusFailed:    {},
		},
		TranscriptStatusFailed: {
			TranscriptStatusPending: {},
		},
		TranscriptStatusCompleted: {},
	}
	_, ok := allowed[current][next]
	return ok
}

type SendStatus string

const (
	SendStatusPending   SendStatus = "pending"
	SendStatusSent      SendStatus = "sent"
	SendStatusDelivered SendStatus = "delivered"
	SendStatusOpened    SendStatus = "opened"
	SendStatusClicked   SendStatus = "clicked"
	SendStatusReplied   SendStatus = "replied"
	SendStatusBounced   SendStatus = "bounced"
	SendStatusFailed    SendStatus = "failed"
)

type Campaign struct {
	ID             string
	CompanyID      string
	Name           string
	Status         string
	TotalSent      int
	TotalDelivered int
	TotalOpened    int
	TotalClicked   int
	TotalReplied   int
	TotalBounced   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CampaignSend is one row per (campaign, recipient). Each engagement
// timestamp is set at most once; a repeated event for an already-stamped send
// is a domain-level no-op independent of the ledger.
type CampaignSend struct {
	ID             string
	CampaignID     string
	CompanyID      string
	ProviderMsgRef string
	RecipientEmail string
	Status         SendStatus
	SentAt         *time.Time
	DeliveredAt    *time.Time
	OpenedAt       *time.Time
	ClickedAt      *time.Time
	RepliedAt      *time.Time
	BouncedAt      *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SuppressionReason string

const (
	SuppressionReasonBounce    SuppressionReason = "bounce"
	SuppressionReasonComplaint SuppressionReason = "complaint"
)

type EmailSuppression struct {
	ID        string
	CompanyID string
	Email     string
	Reason    SuppressionReason
	CreatedAt time.Time
}

// NormalizeEmail canonicalizes an address for suppression matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
