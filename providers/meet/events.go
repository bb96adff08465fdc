package meet

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/hireloop/go-intake/core"
)

const (
	EventEndpointValidation = "endpoint.url_validation"
	EventMeetingStarted     = "meeting.started"
	EventMeetingEnded       = "meeting.ended"
	EventRecordingStarted   = "recording.started"
	EventRecordingStopped   = "recording.stopped"
	EventRecordingPaused    = "recording.paused"
	EventRecordingResumed   = "recording.resumed"
	EventRecordingCompleted = "recording.completed"

	// PrimaryRecordingType tags the artifact that carries the composite
	// speaker view; recording-completed handling prefers it over raw tracks.
	PrimaryRecordingType = "shared_screen_with_speaker_view"
)

// wireEnvelope is the provider's outer event frame. EventTS is epoch
// milliseconds.
type wireEnvelope struct {
	Event   string      `json:"event"`
	EventTS int64       `json:"event_ts"`
	Payload wirePayload `json:"payload"`
}

type wirePayload struct {
	PlainToken string        `json:"plainToken"`
	AccountID  string        `json:"account_id"`
	Object     meetingObject `json:"object"`
}

type meetingObject struct {
	ID             string          `json:"id"`
	UUID           string          `json:"uuid"`
	Topic          string          `json:"topic"`
	HostID         string          `json:"host_id"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	Duration       int             `json:"duration"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// RecordingFile is one artifact descriptor from a recording-completed event.
type RecordingFile struct {
	ID             string    `json:"id"`
	RecordingType  string    `json:"recording_type"`
	RecordingStart time.Time `json:"recording_start"`
	RecordingEnd   time.Time `json:"recording_end"`
	FileType       string    `json:"file_type"`
	FileSize       int64     `json:"file_size"`
	DownloadURL    string    `json:"download_url"`
}

// MeetingDetails is the typed payload for meeting.* and recording lifecycle
// events that carry only the meeting object.
type MeetingDetails struct {
	MeetingRef string
	Topic      string
	StartTime  time.Time
	EndTime    time.Time
	Duration   int
}

// RecordingCompletedDetails carries the artifact list for the terminal
// recording event.
type RecordingCompletedDetails struct {
	MeetingDetails
	Files []RecordingFile
}

// PrimaryFile selects the artifact to publish: the first file tagged with
// PrimaryRecordingType, falling back to the first file present.
func (d RecordingCompletedDetails) PrimaryFile() (RecordingFile, bool) {
	if len(d.Files) == 0 {
		return RecordingFile{}, false
	}
	for _, file := range d.Files {
		if strings.EqualFold(file.RecordingType, PrimaryRecordingType) {
			return file, true
		}
	}
	return d.Files[0], true
}

// DurationSeconds derives the published recording length from the artifact's
// own start/end stamps.
func (f RecordingFile) DurationSeconds() int {
	if f.RecordingEnd.IsZero() || f.RecordingStart.IsZero() {
		return 0
	}
	seconds := int(f.RecordingEnd.Sub(f.RecordingStart) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}

// EventTypes lists every event type the adapter parses, sorted, for handler
// registration.
func EventTypes() []string {
	types := []string{
		EventMeetingStarted,
		EventMeetingEnded,
		EventRecordingStarted,
		EventRecordingStopped,
		EventRecordingPaused,
		EventRecordingResumed,
		EventRecordingCompleted,
	}
	sort.Strings(types)
	return types
}

// Adapter implements the provider wire contract: the v0 signature scheme,
// the endpoint-validation handshake, and typed payload parsing. Malformed
// bodies are acknowledged with a success-shaped response so a bad payload
// never triggers the provider's redelivery storm.
type Adapter struct {
	Verifier *Verifier
	Secret   string
}

func NewAdapter(secret string) *Adapter {
	return &Adapter{
		Verifier: NewVerifier(secret),
		Secret:   secret,
	}
}

func (a *Adapter) Provider() core.Provider { return core.ProviderMeet }

func (a *Adapter) AckMalformed() bool { return true }

func (a *Adapter) Verify(ctx context.Context, req core.InboundRequest) error {
	return a.Verifier.Verify(ctx, req)
}

// Handshake answers endpoint.url_validation with the HMAC-signed echo of the
// provider nonce. It runs before signature verification; validation requests
// are the one legitimate unsigned inbound message.
func (a *Adapter) Handshake(_ context.Context, req core.InboundRequest) (bool, core.InboundResult, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(req.Body, &wire); err != nil {
		return false, core.InboundResult{}, nil
	}
	if wire.Event != EventEndpointValidation {
		return false, core.InboundResult{}, nil
	}
	token := strings.TrimSpace(wire.Payload.PlainToken)
	if token == "" {
		return true, core.InboundResult{}, core.NewMalformedPayloadError(
			"meet: url_validation event is missing plainToken", nil,
		)
	}
	body, err := json.Marshal(map[string]string{
		"plainToken":     token,
		"encryptedToken": SignToken(a.Secret, token),
	})
	if err != nil {
		return true, core.InboundResult{}, err
	}
	return true, core.InboundResult{
		Accepted:   true,
		StatusCode: 200,
		Body:       body,
		Metadata:   map[string]any{"handshake": true},
	}, nil
}

func (a *Adapter) Parse(_ context.Context, req core.InboundRequest) (core.EventEnvelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(req.Body, &wire); err != nil {
		return core.EventEnvelope{}, core.NewMalformedPayloadError(
			"meet: body is not valid JSON", map[string]any{"error": err.Error()},
		)
	}
	eventType := strings.TrimSpace(strings.ToLower(wire.Event))
	if eventType == "" {
		return core.EventEnvelope{}, core.NewMalformedPayloadError("meet: event type is missing", nil)
	}
	meetingRef := strings.TrimSpace(wire.Payload.Object.ID)
	if meetingRef == "" {
		return core.EventEnvelope{}, core.NewMalformedPayloadError(
			"meet: payload object id is missing", map[string]any{"event_type": eventType},
		)
	}
	occurredAt := time.UnixMilli(wire.EventTS).UTC()
	if wire.EventTS == 0 {
		occurredAt = time.Now().UTC()
	}

	details := MeetingDetails{
		MeetingRef: meetingRef,
		Topic:      wire.Payload.Object.Topic,
		StartTime:  wire.Payload.Object.StartTime,
		EndTime:    wire.Payload.Object.EndTime,
		Duration:   wire.Payload.Object.Duration,
	}
	env := core.EventEnvelope{
		Provider:   core.ProviderMeet,
		EventType:  eventType,
		EntityRef:  meetingRef,
		OccurredAt: occurredAt,
		RawBody:    req.Body,
	}
	if eventType == EventRecordingCompleted {
		env.Details = RecordingCompletedDetails{
			MeetingDetails: details,
			Files:          wire.Payload.Object.RecordingFiles,
		}
		return env, nil
	}
	env.Details = details
	return env, nil
}
