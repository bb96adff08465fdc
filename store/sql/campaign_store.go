package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/hireloop/go-intake/core"
)

// CampaignStore applies engagement events to campaign sends. The per-send
// timestamp guard, the aggregate counter increment, and the suppression
// upsert all run inside one transaction so a crash mid-apply leaves no
// partial state.
type CampaignStore struct {
	db   *bun.DB
	repo repository.Repository[*campaignSendRecord]

	Now func() time.Time
}

func NewCampaignStore(db *bun.DB) (*CampaignStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*campaignSendRecord](db, campaignSendHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid campaign send repository wiring: %w", err)
		}
	}
	return &CampaignStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *CampaignStore) GetSendByMsgRef(ctx context.Context, providerMsgRef string) (core.CampaignSend, error) {
	if s == nil || s.db == nil {
		return core.CampaignSend{}, fmt.Errorf("sqlstore: campaign store is not configured")
	}
	record, err := loadSendByMsgRef(ctx, s.db, providerMsgRef)
	if err != nil {
		return core.CampaignSend{}, err
	}
	return campaignSendToDomain(record), nil
}

func (s *CampaignStore) RecordEngagement(ctx context.Context, in core.EngagementInput) (core.EngagementResult, error) {
	if s == nil || s.db == nil {
		return core.EngagementResult{}, fmt.Errorf("sqlstore: campaign store is not configured")
	}

	var result core.EngagementResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := loadSendByMsgRef(ctx, tx, in.ProviderMsgRef)
		if err != nil {
			return err
		}

		stamp, counter, status := engagementTarget(record, in.Kind)
		alreadyStamped := stamp != nil && *stamp != nil
		now := s.now()
		occurredAt := in.OccurredAt.UTC()
		if occurredAt.IsZero() {
			occurredAt = now
		}

		if stamp != nil && !alreadyStamped {
			*stamp = &occurredAt
			record.Status = status
			if in.ErrorMessage != "" {
				record.ErrorMessage = in.ErrorMessage
			}
			record.UpdatedAt = now
			if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
				return err
			}
			if counter != "" {
				if _, err := tx.NewUpdate().
					Model((*campaignRecord)(nil)).
					Set(fmt.Sprintf("%s = %s + 1", counter, counter)).
					Set("updated_at = ?", now).
					Where("id = ?", record.CampaignID).
					Exec(ctx); err != nil {
					return err
				}
			}
			result.Applied = true
		}

		if in.Suppress != "" {
			suppressed, err := insertSuppression(ctx, tx, record, in.Suppress, now)
			if err != nil {
				return err
			}
			result.Suppressed = suppressed
			// Complaints stamp no timestamp; the suppression write is the
			// whole effect and counts as applied when it lands.
			if stamp == nil && suppressed {
				result.Applied = true
			}
		}

		result.Send = campaignSendToDomain(record)
		return nil
	})
	if err != nil {
		return core.EngagementResult{}, err
	}
	return result, nil
}

// engagementTarget maps a kind onto the send's timestamp slot, the campaign
// counter column, and the resulting send status. A nil stamp means the kind
// carries no timestamp (complaints).
func engagementTarget(record *campaignSendRecord, kind core.EngagementKind) (**time.Time, string, string) {
	switch kind {
	case core.EngagementDelivered:
		return &record.DeliveredAt, "total_delivered", string(core.SendStatusDelivered)
	case core.EngagementOpened:
		return &record.OpenedAt, "total_opened", string(core.SendStatusOpened)
	case core.EngagementClicked:
		return &record.ClickedAt, "total_clicked", string(core.SendStatusClicked)
	case core.EngagementReplied:
		return &record.RepliedAt, "total_replied", string(core.SendStatusReplied)
	case core.EngagementBounced:
		return &record.BouncedAt, "total_bounced", string(core.SendStatusBounced)
	default:
		return nil, "", record.Status
	}
}

func insertSuppression(ctx context.Context, tx bun.Tx, record *campaignSendRecord, reason core.SuppressionReason, now time.Time) (bool, error) {
	email := core.NormalizeEmail(record.RecipientEmail)
	if email == "" {
		return false, nil
	}
	suppression := &emailSuppressionRecord{
		ID:        uuid.NewString(),
		CompanyID: record.CompanyID,
		Email:     email,
		Reason:    string(reason),
		CreatedAt: now,
	}
	if _, err := tx.NewInsert().Model(suppression).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func loadSendByMsgRef(ctx context.Context, querier bunQuerier, providerMsgRef string) (*campaignSendRecord, error) {
	providerMsgRef = strings.TrimSpace(providerMsgRef)
	if providerMsgRef == "" {
		return nil, core.NewNotFoundError("sqlstore: provider message ref is empty", nil)
	}
	record := &campaignSendRecord{}
	err := querier.NewSelect().
		Model(record).
		Where("?TableAlias.provider_msg_ref = ?", providerMsgRef).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError(
				fmt.Sprintf("sqlstore: no campaign send tracks message %q", providerMsgRef), nil,
			)
		}
		return nil, err
	}
	return record, nil
}

func (s *CampaignStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func campaignSendToDomain(record *campaignSendRecord) core.CampaignSend {
	if record == nil {
		return core.CampaignSend{}
	}
	send := core.CampaignSend{
		ID:             record.ID,
		CampaignID:     record.CampaignID,
		CompanyID:      record.CompanyID,
		ProviderMsgRef: record.ProviderMsgRef,
		RecipientEmail: record.RecipientEmail,
		Status:         core.SendStatus(record.Status),
		ErrorMessage:   record.ErrorMessage,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
	send.SentAt = cloneTime(record.SentAt)
	send.DeliveredAt = cloneTime(record.DeliveredAt)
	send.OpenedAt = cloneTime(record.OpenedAt)
	send.ClickedAt = cloneTime(record.ClickedAt)
	send.RepliedAt = cloneTime(record.RepliedAt)
	send.BouncedAt = cloneTime(record.BouncedAt)
	return send
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
