package query

import (
	"context"

	"github.com/hireloop/go-intake/core"
)

// EventReader is the read-only slice of the ledger the queries need.
type EventReader interface {
	Get(ctx context.Context, provider core.Provider, eventID string) (core.WebhookEvent, error)
	ListDeadLetters(ctx context.Context, limit int) ([]core.WebhookEvent, error)
}

type InterviewReader interface {
	GetByMeetingRef(ctx context.Context, meetingRef string) (core.Interview, error)
}

type GetEventQuery struct {
	reader EventReader
}

func NewGetEventQuery(reader EventReader) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEvent{}, queryDependencyError("query: event reader is required")
	}
	return q.reader.Get(ctx, msg.Provider, msg.EventID)
}

type ListDeadLettersQuery struct {
	reader EventReader
}

func NewListDeadLettersQuery(reader EventReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) ([]core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	return q.reader.ListDeadLetters(ctx, msg.Limit)
}

type GetInterviewQuery struct {
	reader InterviewReader
}

func NewGetInterviewQuery(reader InterviewReader) *GetInterviewQuery {
	return &GetInterviewQuery{reader: reader}
}

func (q *GetInterviewQuery) Query(ctx context.Context, msg GetInterviewMessage) (core.Interview, error) {
	if q == nil || q.reader == nil {
		return core.Interview{}, queryDependencyError("query: interview reader is required")
	}
	return q.reader.GetByMeetingRef(ctx, msg.MeetingRef)
}
