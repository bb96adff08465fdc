package query

import (
	"fmt"
	"strings"

	"github.com/hireloop/go-intake/core"
)

const (
	TypeGetEvent        = "intake.query.event.get"
	TypeListDeadLetters = "intake.query.dead_letters.list"
	TypeGetInterview    = "intake.query.interview.get"
)

type GetEventMessage struct {
	Provider core.Provider
	EventID  string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if err := m.Provider.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	Limit int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: invalid limit: must be >= 0")
	}
	return nil
}

type GetInterviewMessage struct {
	MeetingRef string
}

func (GetInterviewMessage) Type() string { return TypeGetInterview }

func (m GetInterviewMessage) Validate() error {
	if strings.TrimSpace(m.MeetingRef) == "" {
		return fmt.Errorf("query: meeting ref is required")
	}
	return nil
}
