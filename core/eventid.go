package core

import (
	"fmt"
	"strings"
	"time"
)

// DeriveEventID builds a deterministic event id for providers that do not
// assign one. The composite is not collision-proof for two same-second
// events of the same type on the same entity; callers rely on this exact
// shape for idempotency, so do not strengthen it.
func DeriveEventID(eventType string, occurredAt time.Time, entityRef string) string {
	return fmt.Sprintf(
		"%s-%d-%s",
		strings.TrimSpace(eventType),
		occurredAt.UTC().Unix(),
		strings.TrimSpace(entityRef),
	)
}

// ResolveEventID prefers the provider-assigned id and falls back to the
// derived composite.
func ResolveEventID(env EventEnvelope) string {
	if id := strings.TrimSpace(env.EventID); id != "" {
		return id
	}
	return DeriveEventID(env.EventType, env.OccurredAt, env.EntityRef)
}
