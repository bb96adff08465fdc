package sqlstore

import "github.com/hireloop/go-intake/core"

var (
	_ core.EventLedger          = (*EventLedgerStore)(nil)
	_ core.InterviewStore       = (*InterviewStore)(nil)
	_ core.InterviewStore       = (*CachedInterviewStore)(nil)
	_ core.InterviewByIDMutator = (*InterviewStore)(nil)
	_ core.InterviewByIDMutator = (*CachedInterviewStore)(nil)
	_ core.CampaignStore        = (*CampaignStore)(nil)
)
