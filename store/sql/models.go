package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID            string     `bun:"id,pk"`
	Provider      string     `bun:"provider,notnull"`
	EventType     string     `bun:"event_type,notnull"`
	EventID       string     `bun:"event_id,notnull"`
	EntityRef     string     `bun:"entity_ref"`
	Payload       []byte     `bun:"payload"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	MaxAttempts   int        `bun:"max_attempts,notnull"`
	LastAttemptAt *time.Time `bun:"last_attempt_at,nullzero"`
	NextRetryAt   *time.Time `bun:"next_retry_at,nullzero"`
	ErrorMessage  string     `bun:"error_message"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type interviewRecord struct {
	bun.BaseModel `bun:"table:interviews,alias:iv"`

	ID                       string     `bun:"id,pk"`
	CompanyID                string     `bun:"company_id,notnull"`
	Status                   string     `bun:"status,notnull"`
	RecordingStatus          string     `bun:"recording_status,notnull"`
	TranscriptStatus         string     `bun:"transcript_status,notnull"`
	ExternalMeetingRef       string     `bun:"external_meeting_ref"`
	ScheduledAt              *time.Time `bun:"scheduled_at,nullzero"`
	DurationMinutes          int        `bun:"duration_minutes"`
	RecordingURL             string     `bun:"recording_url"`
	RecordingDurationSeconds int        `bun:"recording_duration_seconds"`
	LastWebhookEventType     string     `bun:"last_webhook_event_type"`
	LastWebhookReceivedAt    *time.Time `bun:"last_webhook_received_at,nullzero"`
	CreatedAt                time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type campaignRecord struct {
	bun.BaseModel `bun:"table:campaigns,alias:cp"`

	ID             string    `bun:"id,pk"`
	CompanyID      string    `bun:"company_id,notnull"`
	Name           string    `bun:"name,notnull"`
	Status         string    `bun:"status,notnull"`
	TotalSent      int       `bun:"total_sent,notnull"`
	TotalDelivered int       `bun:"total_delivered,notnull"`
	TotalOpened    int       `bun:"total_opened,notnull"`
	TotalClicked   int       `bun:"total_clicked,notnull"`
	TotalReplied   int       `bun:"total_replied,notnull"`
	TotalBounced   int       `bun:"total_bounced,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type campaignSendRecord struct {
	bun.BaseModel `bun:"table:campaign_sends,alias:cs"`

	ID             string     `bun:"id,pk"`
	CampaignID     string     `bun:"campaign_id,notnull"`
	CompanyID      string     `bun:"company_id,notnull"`
	ProviderMsgRef string     `bun:"provider_msg_ref"`
	RecipientEmail string     `bun:"recipient_email,notnull"`
	Status         string     `bun:"status,notnull"`
	SentAt         *time.Time `bun:"sent_at,nullzero"`
	DeliveredAt    *time.Time `bun:"delivered_at,nullzero"`
	OpenedAt       *time.Time `bun:"opened_at,nullzero"`
	ClickedAt      *time.Time `bun:"clicked_at,nullzero"`
	RepliedAt      *time.Time `bun:"replied_at,nullzero"`
	BouncedAt      *time.Time `bun:"bounced_at,nullzero"`
	ErrorMessage   string     `bun:"error_message"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type emailSuppressionRecord struct {
	bun.BaseModel `bun:"table:email_suppressions,alias:es"`

	ID        string    `bun:"id,pk"`
	CompanyID string    `bun:"company_id,notnull"`
	Email     string    `bun:"email,notnull"`
	Reason    string    `bun:"reason,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
