package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/hireloop/go-intake/core"
	"github.com/hireloop/go-intake/inbound"
)

// Handler applies engagement events to campaign sends. The per-send
// timestamp guard, the aggregate counter increment, and any suppression
// upsert all run inside the store's single transaction; the handler only
// maps event types onto engagement inputs.
type Handler struct {
	Campaigns core.CampaignStore
	Instr     *core.Instrumentation
	Now       func() time.Time
}

func NewHandler(campaigns core.CampaignStore, instr *core.Instrumentation) *Handler {
	return &Handler{
		Campaigns: campaigns,
		Instr:     instr,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *Handler) Register(dispatcher *inbound.Dispatcher) error {
	for _, eventType := range EventTypes() {
		if err := dispatcher.Register(core.ProviderMail, eventType, inbound.HandlerFunc(h.Handle)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) Handle(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error) {
	switch env.EventType {
	case EventDelivered:
		return h.record(ctx, env, core.EngagementInput{Kind: core.EngagementDelivered})
	case EventOpened:
		return h.record(ctx, env, core.EngagementInput{Kind: core.EngagementOpened})
	case EventClicked:
		return h.record(ctx, env, core.EngagementInput{Kind: core.EngagementClicked})
	case EventReplied:
		return h.record(ctx, env, core.EngagementInput{Kind: core.EngagementReplied})
	case EventBounced:
		input := core.EngagementInput{Kind: core.EngagementBounced, Suppress: core.SuppressionReasonBounce}
		if details, ok := env.Details.(BounceDetails); ok {
			input.ErrorMessage = details.Message
		}
		return h.record(ctx, env, input)
	case EventComplained:
		return h.record(ctx, env, core.EngagementInput{
			Kind:     core.EngagementComplained,
			Suppress: core.SuppressionReasonComplaint,
		})
	case EventDelayed:
		// Logged only. Delays resolve on their own; there is nothing
		// durable to stamp.
		if h.Instr != nil {
			h.Instr.LogInfo(ctx, "email delivery delayed", map[string]any{
				"provider_msg_ref": env.EntityRef,
				"event_id":         env.EventID,
			})
		}
		return core.HandlerResult{Outcome: core.OutcomeIgnored, Reason: "delivery delay is transient"}, nil
	default:
		return core.HandlerResult{
			Outcome: core.OutcomeUnknownType,
			Reason:  fmt.Sprintf("mail: unhandled event type %q", env.EventType),
		}, nil
	}
}

func (h *Handler) record(ctx context.Context, env core.EventEnvelope, input core.EngagementInput) (core.HandlerResult, error) {
	input.ProviderMsgRef = env.EntityRef
	input.OccurredAt = env.OccurredAt

	result, err := h.Campaigns.RecordEngagement(ctx, input)
	if err != nil {
		if core.IsNotFound(err) {
			// Untracked transactional mail shares the sending domain;
			// events for it are expected and acknowledged.
			return core.HandlerResult{
				Outcome: core.OutcomeUnknownEntity,
				Reason:  fmt.Sprintf("no campaign send tracks message %q", env.EntityRef),
			}, nil
		}
		return core.HandlerResult{}, err
	}
	if !result.Applied {
		return core.HandlerResult{
			Outcome: core.OutcomeIgnored,
			Reason:  fmt.Sprintf("%s already stamped for send %s", input.Kind, result.Send.ID),
		}, nil
	}
	return core.HandlerResult{Outcome: core.OutcomeApplied}, nil
}
