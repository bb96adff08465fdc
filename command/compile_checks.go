package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReplayEventMessage]         = (*ReplayEventCommand)(nil)
	_ gocmd.Commander[CancelInterviewMessage]     = (*CancelInterviewCommand)(nil)
	_ gocmd.Commander[RescheduleInterviewMessage] = (*RescheduleInterviewCommand)(nil)
)
