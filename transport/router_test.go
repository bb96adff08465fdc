package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hireloop/go-intake/command"
	"github.com/hireloop/go-intake/core"
	meet "github.com/hireloop/go-intake/providers/meet"
	"github.com/hireloop/go-intake/query"
	"github.com/hireloop/go-intake/webhooks"
)

const testSecret = "meet-signing-secret"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWebhookRoute_AcceptsSignedMeetEvent(t *testing.T) {
	ledger := newStubLedger()
	router := newTestRouter(t, ledger, nil)

	body := []byte(`{"event":"meeting.started","event_ts":1770000000000,"payload":{"object":{"id":"meeting-42"}}}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedMeetRequest(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["accepted"] != true {
		t.Fatalf("expected accepted response, got %v", payload)
	}
	if len(ledger.completed) != 1 {
		t.Fatalf("expected one completed ledger row, got %d", len(ledger.completed))
	}
}

func TestWebhookRoute_RejectsBadSignature(t *testing.T) {
	ledger := newStubLedger()
	router := newTestRouter(t, ledger, nil)

	body := []byte(`{"event":"meeting.started","payload":{"object":{"id":"meeting-42"}}}`)
	req := signedMeetRequest(t, body)
	req.Header.Set(meet.HeaderSignature, "v0=deadbeef")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.TextCode != core.IntakeErrorSignatureInvalid {
		t.Fatalf("expected signature text code, got %q", envelope.Error.TextCode)
	}
	if len(ledger.completed) != 0 || len(ledger.processing) != 0 {
		t.Fatalf("expected no ledger writes for rejected delivery")
	}
}

func TestWebhookRoute_AnswersURLValidationHandshake(t *testing.T) {
	router := newTestRouter(t, newStubLedger(), nil)

	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"nonce-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meet", bytes.NewReader(body))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode handshake body: %v", err)
	}
	if payload["plainToken"] != "nonce-1" {
		t.Fatalf("expected plain token echo, got %q", payload["plainToken"])
	}
	if payload["encryptedToken"] != meet.SignToken(testSecret, "nonce-1") {
		t.Fatalf("expected signed token echo")
	}
}

func TestWebhookRoute_RejectsOversizedBody(t *testing.T) {
	ledger := newStubLedger()
	webhookHandler, _ := newTestHandlers(t, ledger, nil)
	webhookHandler.MaxBodyBytes = 64
	router := NewRouter(webhookHandler, nil)

	body := []byte(`{"event":"meeting.started","pad":"` + strings.Repeat("x", 256) + `"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedMeetRequest(t, body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestAdminRoutes_DeadLetterListAndReplay(t *testing.T) {
	ledger := newStubLedger()
	ledger.deadLetters = []core.WebhookEvent{
		{ID: "led-9", Provider: core.ProviderMail, EventID: "evt-9", Status: core.EventStatusDeadLetter},
	}
	router := newTestRouter(t, newStubLedger(), ledger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/intake/dead-letters?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listing struct {
		DeadLetters []core.WebhookEvent `json:"dead_letters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.DeadLetters) != 1 || listing.DeadLetters[0].ID != "led-9" {
		t.Fatalf("expected led-9 in listing, got %+v", listing.DeadLetters)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake/dead-letters/led-9/replay", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if ledger.requeued != "led-9" {
		t.Fatalf("expected led-9 requeued, got %q", ledger.requeued)
	}
}

func TestAdminRoutes_InterviewLifecycle(t *testing.T) {
	interviews := &stubTransportInterviews{
		interview: core.Interview{
			ID:                 "int-1",
			Status:             core.InterviewStatusScheduled,
			ExternalMeetingRef: "meeting-42",
		},
	}
	router := newInterviewRouter(interviews)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/intake/interviews/meeting-42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/intake/interviews/meeting-unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown meeting, got %d", rec.Code)
	}

	rescheduleBody := `{"scheduled_at":"2026-03-10T15:00:00Z","duration_minutes":60}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/intake/interviews/meeting-42/reschedule", strings.NewReader(rescheduleBody),
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reschedule, got %d: %s", rec.Code, rec.Body.String())
	}
	if interviews.interview.DurationMinutes != 60 {
		t.Fatalf("expected duration updated, got %d", interviews.interview.DurationMinutes)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake/interviews/meeting-42/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 cancel, got %d", rec.Code)
	}
	if interviews.interview.Status != core.InterviewStatusCancelled {
		t.Fatalf("expected cancelled, got %q", interviews.interview.Status)
	}

	// A second cancel is idempotent at the domain layer, but rescheduling a
	// cancelled interview is rejected.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/intake/interviews/meeting-42/reschedule", strings.NewReader(rescheduleBody),
	))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 rescheduling cancelled interview, got %d", rec.Code)
	}
}

func TestPipelineRoute_TranscriptCallback(t *testing.T) {
	sink := &stubTranscriptSink{}
	router := NewRouter(nil, &AdminHandler{Transcripts: sink})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/pipeline/transcripts/int-77", strings.NewReader(`{"status":"processing"}`),
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sink.startedID != "int-77" {
		t.Fatalf("expected started callback for int-77, got %q", sink.startedID)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/pipeline/transcripts/int-77", strings.NewReader(`{"status":"failed","reason":"audio stream truncated"}`),
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sink.failedReason != "audio stream truncated" {
		t.Fatalf("expected failure reason forwarded, got %q", sink.failedReason)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/pipeline/transcripts/int-77", strings.NewReader(`{"status":"archived"}`),
	))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func newTestRouter(t *testing.T, webhookLedger *stubLedger, adminLedger *stubLedger) http.Handler {
	t.Helper()
	webhookHandler, adminHandler := newTestHandlers(t, webhookLedger, adminLedger)
	return NewRouter(webhookHandler, adminHandler)
}

func newTestHandlers(t *testing.T, webhookLedger *stubLedger, adminLedger *stubLedger) (*WebhookHandler, *AdminHandler) {
	t.Helper()

	adapter := meet.NewAdapter(testSecret)
	adapter.Verifier.Now = func() time.Time { return fixedNow }

	processor := webhooks.NewProcessor(webhookLedger, stubDispatcher{}, adapter)
	processor.Now = func() time.Time { return fixedNow }

	webhookHandler := NewWebhookHandler(processor, nil)

	var adminHandler *AdminHandler
	if adminLedger != nil {
		adminHandler = &AdminHandler{
			GetEvent:        query.NewGetEventQuery(adminLedger),
			ListDeadLetters: query.NewListDeadLettersQuery(adminLedger),
			ReplayEvent:     command.NewReplayEventCommand(adminLedger),
		}
	}
	return webhookHandler, adminHandler
}

func newInterviewRouter(interviews *stubTransportInterviews) http.Handler {
	adminHandler := &AdminHandler{
		GetInterview:        query.NewGetInterviewQuery(interviews),
		CancelInterview:     command.NewCancelInterviewCommand(interviews),
		RescheduleInterview: command.NewRescheduleInterviewCommand(interviews),
	}
	return NewRouter(nil, adminHandler)
}

func signedMeetRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	ts := fmt.Sprintf("%d", fixedNow.Unix())
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meet", bytes.NewReader(body))
	req.Header.Set(meet.HeaderTimestamp, ts)
	req.Header.Set(meet.HeaderSignature, "v0="+meet.SignPayload(testSecret, ts, body))
	return req
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(context.Context, core.EventEnvelope) (core.HandlerResult, error) {
	return core.HandlerResult{Outcome: core.OutcomeApplied}, nil
}

type stubLedger struct {
	processing  []string
	completed   []string
	deadLetters []core.WebhookEvent
	requeued    string
}

func newStubLedger() *stubLedger {
	return &stubLedger{}
}

func (s *stubLedger) TryBegin(_ context.Context, env core.EventEnvelope) (core.LedgerClaim, error) {
	return core.LedgerClaim{
		LedgerID: "led-" + env.EventID,
		Created:  true,
		Claimed:  true,
		Status:   core.EventStatusReceived,
	}, nil
}

func (s *stubLedger) MarkProcessing(_ context.Context, ledgerID string) error {
	s.processing = append(s.processing, ledgerID)
	return nil
}

func (s *stubLedger) MarkCompleted(_ context.Context, ledgerID string) error {
	s.completed = append(s.completed, ledgerID)
	return nil
}

func (s *stubLedger) MarkFailed(context.Context, string, error, core.RetryDecision) error {
	return nil
}

func (s *stubLedger) Get(_ context.Context, provider core.Provider, eventID string) (core.WebhookEvent, error) {
	for _, event := range s.deadLetters {
		if event.Provider == provider && event.EventID == eventID {
			return event, nil
		}
	}
	return core.WebhookEvent{}, core.NewNotFoundError("no ledger row for event", nil)
}

func (s *stubLedger) ListRetryDue(context.Context, time.Time, int) ([]core.WebhookEvent, error) {
	return nil, nil
}

func (s *stubLedger) ListDeadLetters(_ context.Context, limit int) ([]core.WebhookEvent, error) {
	if limit > 0 && limit < len(s.deadLetters) {
		return s.deadLetters[:limit], nil
	}
	return s.deadLetters, nil
}

func (s *stubLedger) Requeue(_ context.Context, ledgerID string) error {
	s.requeued = ledgerID
	return nil
}

type stubTransportInterviews struct {
	interview core.Interview
}

func (s *stubTransportInterviews) GetByMeetingRef(_ context.Context, meetingRef string) (core.Interview, error) {
	if s.interview.ExternalMeetingRef != meetingRef {
		return core.Interview{}, core.NewNotFoundError("no interview tracks meeting", nil)
	}
	return s.interview, nil
}

func (s *stubTransportInterviews) Mutate(
	_ context.Context,
	meetingRef string,
	fn func(*core.Interview) error,
) (core.Interview, error) {
	if s.interview.ExternalMeetingRef != meetingRef {
		return core.Interview{}, core.NewNotFoundError("no interview tracks meeting", nil)
	}
	working := s.interview
	if err := fn(&working); err != nil {
		return core.Interview{}, err
	}
	s.interview = working
	return working, nil
}

type stubTranscriptSink struct {
	startedID    string
	completedID  string
	failedID     string
	failedReason string
}

func (s *stubTranscriptSink) TranscriptStarted(_ context.Context, interviewID string) error {
	s.startedID = interviewID
	return nil
}

func (s *stubTranscriptSink) TranscriptCompleted(_ context.Context, interviewID string) error {
	s.completedID = interviewID
	return nil
}

func (s *stubTranscriptSink) TranscriptFailed(_ context.Context, interviewID string, reason string) error {
	s.failedID = interviewID
	s.failedReason = reason
	return nil
}
