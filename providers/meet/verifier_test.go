package meet

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/hireloop/go-intake/core"
)

const testSecret = "meet-shared-secret"

func testNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func signedRequest(t *testing.T, body []byte, issuedAt time.Time) core.InboundRequest {
	t.Helper()
	timestamp := strconv.FormatInt(issuedAt.Unix(), 10)
	return core.InboundRequest{
		Provider: core.ProviderMeet,
		Headers: map[string]string{
			HeaderTimestamp: timestamp,
			HeaderSignature: "v0=" + SignPayload(testSecret, timestamp, body),
		},
		Body: body,
	}
}

func newTestVerifier() *Verifier {
	v := NewVerifier(testSecret)
	v.Now = testNow
	return v
}

func TestVerifierAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"event":"meeting.started"}`)
	req := signedRequest(t, body, testNow())

	if err := newTestVerifier().Verify(context.Background(), req); err != nil {
		t.Fatalf("expected valid signature to verify: %v", err)
	}
}

func TestVerifierRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"event":"meeting.started"}`)
	req := signedRequest(t, body, testNow())
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'X'
	req.Body = tampered

	err := newTestVerifier().Verify(context.Background(), req)
	if !core.IsTextCode(err, core.IntakeErrorSignatureInvalid) {
		t.Fatalf("expected signature invalid error, got %v", err)
	}
}

func TestVerifierRejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{"event":"meeting.started"}`)
	req := signedRequest(t, body, testNow().Add(-301*time.Second))

	err := newTestVerifier().Verify(context.Background(), req)
	if !core.IsTextCode(err, core.IntakeErrorTimestampStale) {
		t.Fatalf("expected stale timestamp error, got %v", err)
	}
}

func TestVerifierAcceptsEdgeOfWindow(t *testing.T) {
	body := []byte(`{"event":"meeting.started"}`)
	req := signedRequest(t, body, testNow().Add(-300*time.Second))

	if err := newTestVerifier().Verify(context.Background(), req); err != nil {
		t.Fatalf("300s-old request is inside the window: %v", err)
	}
}

func TestVerifierRejectsMissingHeaders(t *testing.T) {
	err := newTestVerifier().Verify(context.Background(), core.InboundRequest{
		Provider: core.ProviderMeet,
		Body:     []byte(`{}`),
	})
	if !core.IsTextCode(err, core.IntakeErrorSignatureInvalid) {
		t.Fatalf("expected signature invalid error, got %v", err)
	}
}

func TestAdapterAnswersURLValidationHandshake(t *testing.T) {
	adapter := NewAdapter(testSecret)
	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"nonce-123"}}`)

	handled, result, err := adapter.Handshake(context.Background(), core.InboundRequest{
		Provider: core.ProviderMeet,
		Body:     body,
	})
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if !handled {
		t.Fatal("expected url_validation to be handled")
	}

	var echo map[string]string
	if err := json.Unmarshal(result.Body, &echo); err != nil {
		t.Fatalf("decode handshake response: %v", err)
	}
	if echo["plainToken"] != "nonce-123" {
		t.Fatalf("expected nonce echo, got %q", echo["plainToken"])
	}
	if want := SignToken(testSecret, "nonce-123"); echo["encryptedToken"] != want {
		t.Fatalf("expected signed nonce %q, got %q", want, echo["encryptedToken"])
	}
}

func TestAdapterIgnoresRegularEventsInHandshake(t *testing.T) {
	adapter := NewAdapter(testSecret)
	handled, _, err := adapter.Handshake(context.Background(), core.InboundRequest{
		Body: []byte(`{"event":"meeting.started","payload":{"object":{"id":"m-1"}}}`),
	})
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if handled {
		t.Fatal("regular events must not be treated as handshakes")
	}
}

func TestAdapterParsesRecordingCompleted(t *testing.T) {
	adapter := NewAdapter(testSecret)
	body := []byte(fmt.Sprintf(`{
		"event": "recording.completed",
		"event_ts": %d,
		"payload": {
			"object": {
				"id": "meeting-42",
				"topic": "Final round",
				"recording_files": [
					{"recording_type": "audio_only", "download_url": "https://cdn.example/audio"},
					{
						"recording_type": "shared_screen_with_speaker_view",
						"recording_start": "2026-03-01T11:00:00Z",
						"recording_end": "2026-03-01T11:45:30Z",
						"download_url": "https://cdn.example/speaker"
					}
				]
			}
		}
	}`, testNow().UnixMilli()))

	env, err := adapter.Parse(context.Background(), core.InboundRequest{Provider: core.ProviderMeet, Body: body})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.EventType != EventRecordingCompleted {
		t.Fatalf("expected recording.completed, got %q", env.EventType)
	}
	if env.EntityRef != "meeting-42" {
		t.Fatalf("expected meeting ref, got %q", env.EntityRef)
	}
	if !env.OccurredAt.Equal(testNow()) {
		t.Fatalf("expected occurred-at from event_ts, got %v", env.OccurredAt)
	}

	details, ok := env.Details.(RecordingCompletedDetails)
	if !ok {
		t.Fatalf("expected typed recording details, got %T", env.Details)
	}
	file, found := details.PrimaryFile()
	if !found {
		t.Fatal("expected a primary file")
	}
	if file.DownloadURL != "https://cdn.example/speaker" {
		t.Fatalf("expected speaker-view artifact preferred, got %q", file.DownloadURL)
	}
	if file.DurationSeconds() != 2730 {
		t.Fatalf("expected 2730s duration, got %d", file.DurationSeconds())
	}
}

func TestAdapterParseRejectsMissingEntityRef(t *testing.T) {
	adapter := NewAdapter(testSecret)
	_, err := adapter.Parse(context.Background(), core.InboundRequest{
		Body: []byte(`{"event":"meeting.started","payload":{"object":{}}}`),
	})
	if !core.IsTextCode(err, core.IntakeErrorMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}
