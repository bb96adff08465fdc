package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hireloop/go-intake/core"
)

// Handler processes one verified, deduplicated event envelope. Handlers
// report deliberate no-ops through the outcome instead of an error; errors
// are reserved for transient failures the retry scheduler should see.
type Handler interface {
	Handle(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error)
}

type HandlerFunc func(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error)

func (f HandlerFunc) Handle(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error) {
	return f(ctx, env)
}

// Dispatcher routes envelopes to handlers by (provider, event type). Unknown
// event types are acknowledged no-ops: providers add event types over time
// and an unrecognized type must never bounce a delivery.
type Dispatcher struct {
	Instr *core.Instrumentation

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(instr *core.Instrumentation) *Dispatcher {
	return &Dispatcher{
		Instr:    instr,
		handlers: map[string]Handler{},
	}
}

func (d *Dispatcher) Register(provider core.Provider, eventType string, handler Handler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	if err := provider.Validate(); err != nil {
		return inboundBadInput(err.Error(), map[string]any{"provider": string(provider)})
	}
	eventType = normalizeEventType(eventType)
	if eventType == "" {
		return inboundBadInput("inbound: event type is required", map[string]any{
			"provider": string(provider),
		})
	}
	key := routeKey(provider, eventType)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[key]; exists {
		return inboundInternal(
			fmt.Sprintf("inbound: handler already registered for %q", key),
			map[string]any{"provider": string(provider), "event_type": eventType},
		)
	}
	d.handlers[key] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, env core.EventEnvelope) (core.HandlerResult, error) {
	if d == nil {
		return core.HandlerResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	if err := env.Provider.Validate(); err != nil {
		return core.HandlerResult{}, inboundBadInput(err.Error(), map[string]any{
			"provider": string(env.Provider),
		})
	}
	eventType := normalizeEventType(env.EventType)

	handler := d.handlerFor(env.Provider, eventType)
	if handler == nil {
		d.logUnknownType(ctx, env)
		return core.HandlerResult{
			Outcome: core.OutcomeUnknownType,
			Reason:  fmt.Sprintf("no handler registered for event type %q", env.EventType),
		}, nil
	}

	result, err := handler.Handle(ctx, env)
	if err != nil {
		return core.HandlerResult{}, err
	}
	if result.Outcome == core.OutcomeUnknownEntity {
		d.logUnknownEntity(ctx, env, result.Reason)
	}
	return result, nil
}

func (d *Dispatcher) handlerFor(provider core.Provider, eventType string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[routeKey(provider, eventType)]
}

func (d *Dispatcher) logUnknownType(ctx context.Context, env core.EventEnvelope) {
	if d.Instr == nil {
		return
	}
	d.Instr.LogInfo(ctx, "acknowledged unknown event type", map[string]any{
		"provider":   string(env.Provider),
		"event_type": env.EventType,
		"entity_ref": env.EntityRef,
	})
	d.Instr.IncCounter(ctx, "intake.unknown_event_type.total", 1, map[string]string{
		"provider": string(env.Provider),
	})
}

func (d *Dispatcher) logUnknownEntity(ctx context.Context, env core.EventEnvelope, reason string) {
	if d.Instr == nil {
		return
	}
	// Expected for untracked transactional mail; kept at warn with a
	// counter so operators can alert on sustained volume.
	d.Instr.LogWarn(ctx, "acknowledged event for unknown entity", map[string]any{
		"provider":   string(env.Provider),
		"event_type": env.EventType,
		"entity_ref": env.EntityRef,
		"reason":     reason,
	})
	d.Instr.IncCounter(ctx, "intake.unknown_entity.total", 1, map[string]string{
		"provider": string(env.Provider),
	})
}

func routeKey(provider core.Provider, eventType string) string {
	return string(provider) + ":" + eventType
}

func normalizeEventType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}
