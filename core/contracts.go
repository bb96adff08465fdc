package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// InboundRequest is a provider-agnostic view of one inbound webhook HTTP
// request. Transport adapters build it; nothing below the transport layer
// touches net/http.
type InboundRequest struct {
	Provider Provider
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Body       []byte
	Metadata   map[string]any
}

// EventEnvelope is the parsed, typed form of one provider event. Details
// carries the per-event-type payload variant produced by the provider
// package; handlers never touch loosely typed maps.
type EventEnvelope struct {
	Provider   Provider
	EventType  string
	EventID    string
	EntityRef  string
	OccurredAt time.Time
	RawBody    []byte
	Details    any
}

type HandlerOutcome string

const (
	// OutcomeApplied means durable state was mutated exactly once.
	OutcomeApplied HandlerOutcome = "applied"
	// OutcomeIgnored covers deliberate no-ops: stale events, rejected
	// transitions, already-stamped engagement timestamps.
	OutcomeIgnored HandlerOutcome = "ignored"
	// OutcomeUnknownEntity means no tracked entity matched the ref.
	OutcomeUnknownEntity HandlerOutcome = "unknown_entity"
	// OutcomeUnknownType means the event type has no registered handler.
	OutcomeUnknownType HandlerOutcome = "unknown_type"
)

type HandlerResult struct {
	Outcome  HandlerOutcome
	Reason   string
	Metadata map[string]any
}

// LedgerClaim reports the outcome of a TryBegin insert-or-ignore. Claimed
// means the caller owns processing rights: either the row was freshly
// inserted (Created) or a retry-due failed row was re-claimed. When Claimed
// is false, Status reports why: completed rows are duplicates, processing
// rows belong to another worker, dead_letter rows need operator action.
type LedgerClaim struct {
	LedgerID string
	Created  bool
	Claimed  bool
	Status   EventStatus
	Attempts int
}

// EventLedger is the durable idempotency ledger keyed by
// (provider, event_id). The uniqueness constraint lives in the store, not in
// application logic, so concurrent duplicate deliveries race safely.
type EventLedger interface {
	// TryBegin inserts the event row, or reports the existing row's status.
	// A failed row whose NextRetryAt has elapsed is re-claimed for
	// processing (attempts incremented); anything else is not claimed.
	TryBegin(ctx context.Context, env EventEnvelope) (LedgerClaim, error)
	MarkProcessing(ctx context.Context, ledgerID string) error
	MarkCompleted(ctx context.Context, ledgerID string) error
	// MarkFailed records a handler failure. The scheduler decision
	// (retry with backoff vs dead-letter) is computed by the caller.
	MarkFailed(ctx context.Context, ledgerID string, cause error, decision RetryDecision) error
	Get(ctx context.Context, provider Provider, eventID string) (WebhookEvent, error)
	// ListRetryDue returns failed rows whose NextRetryAt has elapsed,
	// oldest first, for the out-of-band sweep.
	ListRetryDue(ctx context.Context, now time.Time, limit int) ([]WebhookEvent, error)
	ListDeadLetters(ctx context.Context, limit int) ([]WebhookEvent, error)
	// Requeue moves a dead-letter row back to failed with an immediate
	// NextRetryAt so the sweep re-enters it.
	Requeue(ctx context.Context, ledgerID string) error
}

type InterviewStore interface {
	GetByMeetingRef(ctx context.Context, meetingRef string) (Interview, error)
	// Mutate loads the interview by meeting ref, applies fn, and persists
	// the result inside one transaction. fn returning an error rolls back.
	Mutate(ctx context.Context, meetingRef string, fn func(*Interview) error) (Interview, error)
	Update(ctx context.Context, interview Interview) error
}

type EngagementKind string

const (
	EngagementDelivered EngagementKind = "delivered"
	EngagementOpened    EngagementKind = "opened"
	EngagementClicked   EngagementKind = "clicked"
	EngagementReplied   EngagementKind = "replied"
	EngagementBounced   EngagementKind = "bounced"
	// EngagementComplained stamps nothing on the send; it exists to carry
	// the suppression upsert through the same transactional path.
	EngagementComplained EngagementKind = "complained"
)

type EngagementInput struct {
	ProviderMsgRef string
	Kind           EngagementKind
	OccurredAt     time.Time
	Suppress       SuppressionReason
	ErrorMessage   string
}

type EngagementResult struct {
	Applied    bool
	Send       CampaignSend
	Suppressed bool
}

// CampaignStore applies engagement events. The per-send timestamp guard, the
// aggregate counter increment, and any suppression upsert all happen inside
// one transaction; a send whose timestamp is already set reports
// Applied=false and changes nothing.
type CampaignStore interface {
	RecordEngagement(ctx context.Context, in EngagementInput) (EngagementResult, error)
	GetSendByMsgRef(ctx context.Context, providerMsgRef string) (CampaignSend, error)
}

// PipelineTrigger hands a completed recording off to the downstream
// post-processing pipeline. Implementations must not block the caller.
type PipelineTrigger interface {
	TriggerTranscription(ctx context.Context, interviewID string) error
}

// TranscriptSink is the pipeline's way back in once transcription finishes.
type TranscriptSink interface {
	TranscriptStarted(ctx context.Context, interviewID string) error
	TranscriptCompleted(ctx context.Context, interviewID string) error
	TranscriptFailed(ctx context.Context, interviewID string, reason string) error
}

// InterviewByIDMutator loads and persists an interview keyed by its id.
// Pipeline callbacks carry the interview id, not the provider meeting ref.
type InterviewByIDMutator interface {
	MutateByID(ctx context.Context, interviewID string, fn func(*Interview) error) (Interview, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// RateLimitKey identifies one ingress bucket.
type RateLimitKey struct {
	Provider Provider
	Bucket   string
}
