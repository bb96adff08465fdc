package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/hireloop/go-intake/core"
)

type InterviewStore struct {
	db   *bun.DB
	repo repository.Repository[*interviewRecord]
}

func NewInterviewStore(db *bun.DB) (*InterviewStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*interviewRecord](db, interviewHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid interview repository wiring: %w", err)
		}
	}
	return &InterviewStore{db: db, repo: repo}, nil
}

func (s *InterviewStore) GetByMeetingRef(ctx context.Context, meetingRef string) (core.Interview, error) {
	if s == nil || s.db == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: interview store is not configured")
	}
	record, err := loadInterviewByMeetingRef(ctx, s.db, meetingRef)
	if err != nil {
		return core.Interview{}, err
	}
	return interviewToDomain(record), nil
}

// Mutate loads the interview, applies fn, and persists every field fn may
// have touched inside one transaction. fn returning an error rolls the
// transaction back with nothing written.
func (s *InterviewStore) Mutate(ctx context.Context, meetingRef string, fn func(*core.Interview) error) (core.Interview, error) {
	if s == nil || s.db == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: interview store is not configured")
	}
	if fn == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: mutate requires a mutation function")
	}

	var mutated core.Interview
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := loadInterviewByMeetingRef(ctx, tx, meetingRef)
		if err != nil {
			return err
		}
		interview := interviewToDomain(record)
		if err := fn(&interview); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model(interviewFromDomain(interview)).
			WherePK().
			Exec(ctx); err != nil {
			return err
		}
		mutated = interview
		return nil
	})
	if err != nil {
		return core.Interview{}, err
	}
	return mutated, nil
}

// MutateByID is the pipeline callback path: transcription results arrive
// keyed by interview id, not meeting ref.
func (s *InterviewStore) MutateByID(ctx context.Context, interviewID string, fn func(*core.Interview) error) (core.Interview, error) {
	if s == nil || s.db == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: interview store is not configured")
	}
	if fn == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: mutate requires a mutation function")
	}

	var mutated core.Interview
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := loadInterviewByID(ctx, tx, interviewID)
		if err != nil {
			return err
		}
		interview := interviewToDomain(record)
		if err := fn(&interview); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model(interviewFromDomain(interview)).
			WherePK().
			Exec(ctx); err != nil {
			return err
		}
		mutated = interview
		return nil
	})
	if err != nil {
		return core.Interview{}, err
	}
	return mutated, nil
}

func (s *InterviewStore) Update(ctx context.Context, interview core.Interview) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: interview store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model(interviewFromDomain(interview)).
		WherePK().
		Exec(ctx)
	return err
}

type bunQuerier interface {
	NewSelect() *bun.SelectQuery
}

func loadInterviewByMeetingRef(ctx context.Context, querier bunQuerier, meetingRef string) (*interviewRecord, error) {
	meetingRef = strings.TrimSpace(meetingRef)
	if meetingRef == "" {
		return nil, core.NewNotFoundError("sqlstore: meeting ref is empty", nil)
	}
	record := &interviewRecord{}
	err := querier.NewSelect().
		Model(record).
		Where("?TableAlias.external_meeting_ref = ?", meetingRef).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError(
				fmt.Sprintf("sqlstore: no interview tracks meeting %q", meetingRef), nil,
			)
		}
		return nil, err
	}
	return record, nil
}

func loadInterviewByID(ctx context.Context, querier bunQuerier, interviewID string) (*interviewRecord, error) {
	interviewID = strings.TrimSpace(interviewID)
	if interviewID == "" {
		return nil, core.NewNotFoundError("sqlstore: interview id is empty", nil)
	}
	record := &interviewRecord{}
	err := querier.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", interviewID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError(
				fmt.Sprintf("sqlstore: no interview with id %q", interviewID), nil,
			)
		}
		return nil, err
	}
	return record, nil
}

func interviewToDomain(record *interviewRecord) core.Interview {
	if record == nil {
		return core.Interview{}
	}
	interview := core.Interview{
		ID:                       record.ID,
		CompanyID:                record.CompanyID,
		Status:                   core.InterviewStatus(record.Status),
		RecordingStatus:          core.RecordingStatus(record.RecordingStatus),
		TranscriptStatus:         core.TranscriptStatus(record.TranscriptStatus),
		ExternalMeetingRef:       record.ExternalMeetingRef,
		DurationMinutes:          record.DurationMinutes,
		RecordingURL:             record.RecordingURL,
		RecordingDurationSeconds: record.RecordingDurationSeconds,
		LastWebhookEventType:     record.LastWebhookEventType,
		CreatedAt:                record.CreatedAt,
		UpdatedAt:                record.UpdatedAt,
	}
	if record.ScheduledAt != nil {
		value := *record.ScheduledAt
		interview.ScheduledAt = &value
	}
	if record.LastWebhookReceivedAt != nil {
		value := *record.LastWebhookReceivedAt
		interview.LastWebhookReceivedAt = &value
	}
	return interview
}

func interviewFromDomain(interview core.Interview) *interviewRecord {
	record := &interviewRecord{
		ID:                       interview.ID,
		CompanyID:                interview.CompanyID,
		Status:                   string(interview.Status),
		RecordingStatus:          string(interview.RecordingStatus),
		TranscriptStatus:         string(interview.TranscriptStatus),
		ExternalMeetingRef:       interview.ExternalMeetingRef,
		DurationMinutes:          interview.DurationMinutes,
		RecordingURL:             interview.RecordingURL,
		RecordingDurationSeconds: interview.RecordingDurationSeconds,
		LastWebhookEventType:     interview.LastWebhookEventType,
		CreatedAt:                interview.CreatedAt,
		UpdatedAt:                interview.UpdatedAt,
	}
	if interview.ScheduledAt != nil {
		value := *interview.ScheduledAt
		record.ScheduledAt = &value
	}
	if interview.LastWebhookReceivedAt != nil {
		value := *interview.LastWebhookReceivedAt
		record.LastWebhookReceivedAt = &value
	}
	return record
}
