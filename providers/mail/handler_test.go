package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/hireloop/go-intake/core"
)

type stubCampaignStore struct {
	inputs []core.EngagementInput
	result core.EngagementResult
	err    error
}

func (s *stubCampaignStore) RecordEngagement(_ context.Context, in core.EngagementInput) (core.EngagementResult, error) {
	s.inputs = append(s.inputs, in)
	return s.result, s.err
}

func (s *stubCampaignStore) GetSendByMsgRef(context.Context, string) (core.CampaignSend, error) {
	return core.CampaignSend{}, core.NewNotFoundError("send not found", nil)
}

func mailEnvelope(eventType string, details any) core.EventEnvelope {
	return core.EventEnvelope{
		Provider:   core.ProviderMail,
		EventType:  eventType,
		EventID:    "evt_9",
		EntityRef:  "msg_abc",
		OccurredAt: testNow(),
		Details:    details,
	}
}

func TestOpenedEventRecordsEngagement(t *testing.T) {
	store := &stubCampaignStore{result: core.EngagementResult{Applied: true}}
	h := NewHandler(store, nil)
	h.Now = testNow

	result, err := h.Handle(context.Background(), mailEnvelope(EventOpened, EmailDetails{MessageRef: "msg_abc"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Outcome != core.OutcomeApplied {
		t.Fatalf("expected applied, got %q", result.Outcome)
	}
	if len(store.inputs) != 1 {
		t.Fatalf("expected one engagement write, got %d", len(store.inputs))
	}
	in := store.inputs[0]
	if in.Kind != core.EngagementOpened || in.ProviderMsgRef != "msg_abc" {
		t.Fatalf("unexpected engagement input: %+v", in)
	}
	if !in.OccurredAt.Equal(testNow()) {
		t.Fatalf("expected event timestamp forwarded, got %v", in.OccurredAt)
	}
}

func TestRepliedEventRecordsEngagement(t *testing.T) {
	store := &stubCampaignStore{result: core.EngagementResult{Applied: true}}
	h := NewHandler(store, nil)

	result, err := h.Handle(context.Background(), mailEnvelope(EventReplied, EmailDetails{MessageRef: "msg_abc"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Outcome != core.OutcomeApplied {
		t.Fatalf("expected applied, got %q", result.Outcome)
	}
	in := store.inputs[0]
	if in.Kind != core.EngagementReplied || in.Suppress != "" {
		t.Fatalf("unexpected engagement input: %+v", in)
	}
}

func TestRepeatedEngagementIsIgnoredNotReapplied(t *testing.T) {
	store := &stubCampaignStore{result: core.EngagementResult{
		Applied: false,
		Send:    core.CampaignSend{ID: "send-1"},
	}}
	h := NewHandler(store, nil)

	result, err := h.Handle(context.Background(), mailEnvelope(EventOpened, EmailDetails{MessageRef: "msg_abc"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Outcome != core.OutcomeIgnored {
		t.Fatalf("expected ignored, got %q", result.Outcome)
	}
}

func TestBouncedEventCarriesSuppressionAndErrorMessage(t *testing.T) {
	store := &stubCampaignStore{result: core.EngagementResult{Applied: true, Suppressed: true}}
	h := NewHandler(store, nil)

	details := BounceDetails{
		EmailDetails: EmailDetails{MessageRef: "msg_abc", Recipient: "a@x.com"},
		BounceType:   "hard",
		Message:      "mailbox does not exist",
	}
	result, err := h.Handle(context.Background(), mailEnvelope(EventBounced, details))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Outcome != core.OutcomeApplied {
		t.Fatalf("expected applied, got %q", result.Outcome)
	}
	in := store.inputs[0]
	if in.Kind != core.EngagementBounced {
		t.Fatalf("expected bounced kind, got %q", in.Kind)
	}
	if in.Suppress != core.SuppressionReasonBounce {
		t.Fatalf("expected bounce suppression, got %q", in.Suppress)
	}
	if in.ErrorMessage != "mailbox does not exist" {
		t.Fatalf("expected bounce message forwarded, got %q", in.ErrorMessage)
	}
}

func TestComplainedEventSuppressesWithoutTimestampKind(t *testing.T) {
	store := &stubCampaignStore{result: core.EngagementResult{Applied: true, Suppressed: true}}
	h := NewHandler(store, nil)

	if _, err := h.Handle(context.Background(), mailEnvelope(EventComplained, BounceDetails{})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	in := store.inputs[0]
	if in.Kind != core.EngagementComplained || in.Suppress != core.SuppressionReasonComplaint {
		t.Fatalf("unexpected complaint input: %+v", in)
	}
}

func TestUnknownSendIsAcknowledgedNoop(t *testing.T) {
	store := &stubCampaignStore{err: core.NewNotFoundError("send not found", nil)}
	h := NewHandler(store, nil)

	result, err := h.Handle(context.Background(), mailEnvelope(EventDelivered, EmailDetails{MessageRef: "msg_abc"}))
	if err != nil {
		t.Fatalf("unknown send must not error: %v", err)
	}
	if result.Outcome != core.OutcomeUnknownEntity {
		t.Fatalf("expected unknown_entity, got %q", result.Outcome)
	}
}

func TestStoreFailurePropagatesForRetry(t *testing.T) {
	boom := errors.New("connection refused")
	store := &stubCampaignStore{err: boom}
	h := NewHandler(store, nil)

	_, err := h.Handle(context.Background(), mailEnvelope(EventDelivered, EmailDetails{MessageRef: "msg_abc"}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestDelayedEventIsLoggedOnly(t *testing.T) {
	store := &stubCampaignStore{}
	h := NewHandler(store, nil)

	result, err := h.Handle(context.Background(), mailEnvelope(EventDelayed, EmailDetails{MessageRef: "msg_abc"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Outcome != core.OutcomeIgnored {
		t.Fatalf("expected ignored, got %q", result.Outcome)
	}
	if len(store.inputs) != 0 {
		t.Fatalf("delayed events must not touch the store, got %d writes", len(store.inputs))
	}
}
