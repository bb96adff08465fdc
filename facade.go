package intake

import (
	"fmt"

	intakecommand "github.com/hireloop/go-intake/command"
	"github.com/hireloop/go-intake/core"
	intakequery "github.com/hireloop/go-intake/query"
)

// Commands bundles the mutating handlers the admin surface exposes.
type Commands struct {
	ReplayEvent         *intakecommand.ReplayEventCommand
	CancelInterview     *intakecommand.CancelInterviewCommand
	RescheduleInterview *intakecommand.RescheduleInterviewCommand
}

// Queries bundles the read-side handlers the admin surface exposes.
type Queries struct {
	GetEvent        *intakequery.GetEventQuery
	ListDeadLetters *intakequery.ListDeadLettersQuery
	GetInterview    *intakequery.GetInterviewQuery
}

// Facade wires the intake stores into command and query handlers so hosts
// can mount an admin surface without assembling each handler by hand.
type Facade struct {
	ledger     core.EventLedger
	interviews core.InterviewStore
	commands   Commands
	queries    Queries
}

func NewFacade(ledger core.EventLedger, interviews core.InterviewStore) (*Facade, error) {
	if ledger == nil {
		return nil, fmt.Errorf("intake: event ledger is required")
	}
	if interviews == nil {
		return nil, fmt.Errorf("intake: interview store is required")
	}

	facade := &Facade{ledger: ledger, interviews: interviews}
	facade.commands = Commands{
		ReplayEvent:         intakecommand.NewReplayEventCommand(ledger),
		CancelInterview:     intakecommand.NewCancelInterviewCommand(interviews),
		RescheduleInterview: intakecommand.NewRescheduleInterviewCommand(interviews),
	}
	facade.queries = Queries{
		GetEvent:        intakequery.NewGetEventQuery(ledger),
		ListDeadLetters: intakequery.NewListDeadLettersQuery(ledger),
		GetInterview:    intakequery.NewGetInterviewQuery(interviews),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Ledger() core.EventLedger {
	if f == nil {
		return nil
	}
	return f.ledger
}

func (f *Facade) Interviews() core.InterviewStore {
	if f == nil {
		return nil
	}
	return f.interviews
}
