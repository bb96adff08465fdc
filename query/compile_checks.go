package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/hireloop/go-intake/core"
)

var (
	_ gocmd.Querier[GetEventMessage, core.WebhookEvent]          = (*GetEventQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.WebhookEvent] = (*ListDeadLettersQuery)(nil)
	_ gocmd.Querier[GetInterviewMessage, core.Interview]         = (*GetInterviewQuery)(nil)
)
