package mail

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/hireloop/go-intake/core"
)

const (
	EventDelivered  = "email.delivered"
	EventOpened     = "email.opened"
	EventClicked    = "email.clicked"
	EventReplied    = "email.replied"
	EventBounced    = "email.bounced"
	EventComplained = "email.complained"
	EventDelayed    = "email.delivery_delayed"
)

// wireEnvelope is the provider's outer event frame.
type wireEnvelope struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Data      wireData  `json:"data"`
}

type wireData struct {
	EmailID string     `json:"email_id"`
	From    string     `json:"from"`
	To      []string   `json:"to"`
	Subject string     `json:"subject"`
	Bounce  *wireBounce `json:"bounce,omitempty"`
	Click   *wireClick  `json:"click,omitempty"`
}

type wireBounce struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wireClick struct {
	Link      string    `json:"link"`
	Timestamp time.Time `json:"timestamp"`
}

// EmailDetails is the typed payload shared by every mail event.
type EmailDetails struct {
	MessageRef string
	Recipient  string
	Subject    string
}

type BounceDetails struct {
	EmailDetails
	BounceType string
	Message    string
}

type ClickDetails struct {
	EmailDetails
	Link string
}

func EventTypes() []string {
	types := []string{
		EventDelivered,
		EventOpened,
		EventClicked,
		EventReplied,
		EventBounced,
		EventComplained,
		EventDelayed,
	}
	sort.Strings(types)
	return types
}

// Adapter implements the email provider's wire contract. Unlike the video
// provider, malformed bodies here are rejected with a client error; this
// provider backs off on 4xx instead of storming.
type Adapter struct {
	Verifier *Verifier
}

func NewAdapter(secret string) *Adapter {
	return &Adapter{Verifier: NewVerifier(secret)}
}

func (a *Adapter) Provider() core.Provider { return core.ProviderMail }

func (a *Adapter) AckMalformed() bool { return false }

// Handshake is a no-op: the email provider verifies endpoint ownership by
// signature alone.
func (a *Adapter) Handshake(context.Context, core.InboundRequest) (bool, core.InboundResult, error) {
	return false, core.InboundResult{}, nil
}

func (a *Adapter) Verify(ctx context.Context, req core.InboundRequest) error {
	return a.Verifier.Verify(ctx, req)
}

func (a *Adapter) Parse(_ context.Context, req core.InboundRequest) (core.EventEnvelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(req.Body, &wire); err != nil {
		return core.EventEnvelope{}, core.NewMalformedPayloadError(
			"mail: body is not valid JSON", map[string]any{"error": err.Error()},
		)
	}
	eventType := strings.TrimSpace(strings.ToLower(wire.Type))
	if eventType == "" {
		return core.EventEnvelope{}, core.NewMalformedPayloadError("mail: event type is missing", nil)
	}
	messageRef := strings.TrimSpace(wire.Data.EmailID)
	if messageRef == "" {
		return core.EventEnvelope{}, core.NewMalformedPayloadError(
			"mail: data.email_id is missing", map[string]any{"event_type": eventType},
		)
	}
	occurredAt := wire.CreatedAt.UTC()
	if wire.CreatedAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	details := EmailDetails{
		MessageRef: messageRef,
		Recipient:  firstRecipient(wire.Data.To),
		Subject:    wire.Data.Subject,
	}
	env := core.EventEnvelope{
		Provider:   core.ProviderMail,
		EventType:  eventType,
		EventID:    strings.TrimSpace(wire.ID),
		EntityRef:  messageRef,
		OccurredAt: occurredAt,
		RawBody:    req.Body,
	}
	switch eventType {
	case EventBounced, EventComplained:
		bounce := BounceDetails{EmailDetails: details}
		if wire.Data.Bounce != nil {
			bounce.BounceType = wire.Data.Bounce.Type
			bounce.Message = wire.Data.Bounce.Message
		}
		env.Details = bounce
	case EventClicked:
		click := ClickDetails{EmailDetails: details}
		if wire.Data.Click != nil {
			click.Link = wire.Data.Click.Link
		}
		env.Details = click
	default:
		env.Details = details
	}
	return env, nil
}

func firstRecipient(to []string) string {
	for _, recipient := range to {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
