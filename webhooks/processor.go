package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hireloop/go-intake/core"
)

// ProviderAdapter is one provider's wire-level contract: signature
// verification, the optional handshake exchange, and payload parsing.
// Adapters never touch the ledger or domain stores.
type ProviderAdapter interface {
	Provider() core.Provider
	// Handshake inspects the raw request before signature verification and
	// answers challenge exchanges (endpoint validation). handled=false means
	// the request is a regular event delivery.
	Handshake(ctx context.Context, req core.InboundRequest) (handled bool, result core.InboundResult, err error)
	Verify(ctx context.Context, req core.InboundRequest) error
	Parse(ctx context.Context, req core.InboundRequest) (core.EventEnvelope, error)
	// AckMalformed reports whether an unparseable body should still be
	// acknowledged with a success-shaped response. Providers that redeliver
	// aggressively on non-2xx want this.
	AckMalformed() bool
}

// EventDispatcher routes parsed envelopes to domain handlers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error)
}

// EventRateLimiter gates ingress per provider bucket. A nil limiter admits
// everything.
type EventRateLimiter interface {
	Allow(ctx context.Context, key core.RateLimitKey) error
}

// Processor runs the full intake pipeline for one inbound delivery:
// handshake, verify, parse, ledger claim, dispatch, ledger mark. Every
// recognized event past signature and parse checks is acknowledged with
// 200 regardless of handler outcome; retries run out-of-band through the
// sweep, never through provider redelivery.
type Processor struct {
	Adapters   map[core.Provider]ProviderAdapter
	Ledger     core.EventLedger
	Dispatcher EventDispatcher
	Scheduler  *core.RetryScheduler
	Limiter    EventRateLimiter
	Instr      *core.Instrumentation

	MaxAttempts int
	Now         func() time.Time
}

func NewProcessor(ledger core.EventLedger, dispatcher EventDispatcher, adapters ...ProviderAdapter) *Processor {
	byProvider := map[core.Provider]ProviderAdapter{}
	for _, adapter := range adapters {
		if adapter != nil {
			byProvider[adapter.Provider()] = adapter
		}
	}
	return &Processor{
		Adapters:    byProvider,
		Ledger:      ledger,
		Dispatcher:  dispatcher,
		Scheduler:   core.NewRetryScheduler(),
		MaxAttempts: core.DefaultMaxAttempts,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Ledger == nil || p.Dispatcher == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires ledger and dispatcher")
	}
	adapter := p.Adapters[req.Provider]
	if adapter == nil {
		return core.InboundResult{}, core.NewMalformedPayloadError(
			fmt.Sprintf("webhooks: no adapter for provider %q", req.Provider),
			map[string]any{"provider": string(req.Provider)},
		)
	}

	if handled, result, err := adapter.Handshake(ctx, req); handled || err != nil {
		if err != nil {
			return core.InboundResult{}, err
		}
		p.observe(ctx, "handshake", req.Provider, "", nil)
		return result, nil
	}

	if p.Limiter != nil {
		if err := p.Limiter.Allow(ctx, core.RateLimitKey{Provider: req.Provider, Bucket: "ingress"}); err != nil {
			return core.InboundResult{}, err
		}
	}

	if err := adapter.Verify(ctx, req); err != nil {
		p.observe(ctx, "verify_rejected", req.Provider, "", nil)
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"provider": string(req.Provider), "rejected": true},
		}, err
	}

	env, err := adapter.Parse(ctx, req)
	if err != nil {
		p.observe(ctx, "parse_rejected", req.Provider, "", nil)
		if adapter.AckMalformed() {
			p.logError(ctx, "acknowledged malformed payload", req.Provider, "", err)
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   map[string]any{"provider": string(req.Provider), "malformed": true},
			}, nil
		}
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata:   map[string]any{"provider": string(req.Provider), "malformed": true},
		}, err
	}
	env.EventID = core.ResolveEventID(env)

	return p.apply(ctx, env)
}

// ProcessStored re-runs a previously failed delivery from its ledger row.
// The signature was verified on first receipt; the sweep trusts the stored
// payload and goes straight to parse.
func (p *Processor) ProcessStored(ctx context.Context, event core.WebhookEvent) (core.InboundResult, error) {
	if p == nil || p.Ledger == nil || p.Dispatcher == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires ledger and dispatcher")
	}
	adapter := p.Adapters[event.Provider]
	if adapter == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: no adapter for provider %q", event.Provider)
	}

	env, err := adapter.Parse(ctx, core.InboundRequest{
		Provider: event.Provider,
		Body:     event.Payload,
	})
	if err != nil {
		// Oversized payloads are stored truncated; they cannot be replayed
		// and go straight to the dead-letter queue.
		decision := core.RetryDecision{DeadLetter: true}
		if markErr := p.Ledger.MarkFailed(ctx, event.ID, err, decision); markErr != nil {
			return core.InboundResult{}, markErr
		}
		p.logError(ctx, "stored payload no longer parseable, dead-lettered", event.Provider, event.EventID, err)
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"event_id": event.EventID, "status": string(core.EventStatusDeadLetter)},
		}, nil
	}
	env.EventID = event.EventID

	return p.apply(ctx, env)
}

// apply runs the shared claim-dispatch-mark tail of the pipeline.
func (p *Processor) apply(ctx context.Context, env core.EventEnvelope) (core.InboundResult, error) {
	claim, err := p.Ledger.TryBegin(ctx, env)
	if err != nil {
		return core.InboundResult{}, core.NewTransientError(err, "webhooks: ledger claim failed", nil)
	}
	meta := map[string]any{
		"provider":   string(env.Provider),
		"event_type": env.EventType,
		"event_id":   env.EventID,
	}

	if !claim.Claimed {
		meta["status"] = string(claim.Status)
		meta["deduped"] = true
		p.observe(ctx, "deduped", env.Provider, env.EventType, meta)
		return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: meta}, nil
	}

	if claim.Created {
		if err := p.Ledger.MarkProcessing(ctx, claim.LedgerID); err != nil {
			return core.InboundResult{}, core.NewTransientError(err, "webhooks: mark processing failed", nil)
		}
	}

	result, err := p.Dispatcher.Dispatch(ctx, env)
	if err != nil {
		return p.settleFailure(ctx, env, claim, meta, err)
	}

	if err := p.Ledger.MarkCompleted(ctx, claim.LedgerID); err != nil {
		return core.InboundResult{}, core.NewTransientError(err, "webhooks: mark completed failed", nil)
	}
	meta["status"] = string(core.EventStatusCompleted)
	meta["outcome"] = string(result.Outcome)
	if result.Reason != "" {
		meta["reason"] = result.Reason
	}
	p.observe(ctx, "processed", env.Provider, env.EventType, meta)
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: meta}, nil
}

// settleFailure records the handler error against the ledger row. Domain
// rejections (unknown entity, refused transitions) are terminal no-ops and
// complete the row; anything else is scheduled for retry or dead-lettered.
func (p *Processor) settleFailure(
	ctx context.Context,
	env core.EventEnvelope,
	claim core.LedgerClaim,
	meta map[string]any,
	cause error,
) (core.InboundResult, error) {
	if core.IsTextCode(cause, core.IntakeErrorTransitionRejected) ||
		core.IsTextCode(cause, core.IntakeErrorUnknownEntity) {
		if err := p.Ledger.MarkCompleted(ctx, claim.LedgerID); err != nil {
			return core.InboundResult{}, core.NewTransientError(err, "webhooks: mark completed failed", nil)
		}
		meta["status"] = string(core.EventStatusCompleted)
		meta["outcome"] = string(core.OutcomeIgnored)
		meta["reason"] = cause.Error()
		p.logError(ctx, "acknowledged rejected event", env.Provider, env.EventID, cause)
		p.observe(ctx, "processed", env.Provider, env.EventType, meta)
		return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: meta}, nil
	}

	decision := p.scheduler().Classify(claim.Attempts, p.maxAttempts())
	if err := p.Ledger.MarkFailed(ctx, claim.LedgerID, cause, decision); err != nil {
		return core.InboundResult{}, core.NewTransientError(err, "webhooks: mark failed failed", nil)
	}
	if decision.DeadLetter {
		meta["status"] = string(core.EventStatusDeadLetter)
		p.observe(ctx, "dead_letter", env.Provider, env.EventType, meta)
	} else {
		meta["status"] = string(core.EventStatusFailed)
		meta["next_retry_at"] = decision.NextRetryAt.Format(time.RFC3339)
		p.observe(ctx, "retry_scheduled", env.Provider, env.EventType, meta)
	}
	p.logError(ctx, "handler failed, acknowledged for out-of-band retry", env.Provider, env.EventID, cause)
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: meta}, nil
}

func (p *Processor) observe(ctx context.Context, operation string, provider core.Provider, eventType string, meta map[string]any) {
	if p.Instr == nil {
		return
	}
	tags := map[string]string{"provider": string(provider)}
	if eventType != "" {
		tags["event_type"] = eventType
	}
	p.Instr.IncCounter(ctx, "intake.webhook."+operation+".total", 1, tags)
	if len(meta) > 0 {
		p.Instr.LogInfo(ctx, "webhook "+strings.ReplaceAll(operation, "_", " "), meta)
	}
}

func (p *Processor) logError(ctx context.Context, message string, provider core.Provider, eventID string, cause error) {
	if p.Instr == nil {
		return
	}
	p.Instr.LogWarn(ctx, message, map[string]any{
		"provider": string(provider),
		"event_id": eventID,
		"error":    cause.Error(),
	})
}

func (p *Processor) scheduler() *core.RetryScheduler {
	if p != nil && p.Scheduler != nil {
		return p.Scheduler
	}
	return core.NewRetryScheduler()
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return core.DefaultMaxAttempts
}
