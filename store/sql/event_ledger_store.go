package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/hireloop/go-intake/core"
)

// DefaultPayloadByteLimit caps what TryBegin stores per event. The ledger is
// an audit trail, not a replay source; oversized bodies are truncated.
const DefaultPayloadByteLimit = 10 * 1024

// EventLedgerStore is the durable idempotency ledger. Concurrent duplicate
// deliveries race on the (provider, event_id) uniqueness constraint; exactly
// one insert wins and every loser reads the winner's row.
type EventLedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]

	PayloadByteLimit int
	Now              func() time.Time
}

func NewEventLedgerStore(db *bun.DB) (*EventLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &EventLedgerStore{
		db:               db,
		repo:             repo,
		PayloadByteLimit: DefaultPayloadByteLimit,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *EventLedgerStore) TryBegin(ctx context.Context, env core.EventEnvelope) (core.LedgerClaim, error) {
	if s == nil || s.db == nil {
		return core.LedgerClaim{}, fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	eventID := strings.TrimSpace(env.EventID)
	if eventID == "" {
		return core.LedgerClaim{}, fmt.Errorf("sqlstore: event id is required for dedupe")
	}

	now := s.now()
	record := &webhookEventRecord{
		ID:          uuid.NewString(),
		Provider:    string(env.Provider),
		EventType:   env.EventType,
		EventID:     eventID,
		EntityRef:   env.EntityRef,
		Payload:     s.storablePayload(env.RawBody),
		Status:      string(core.EventStatusReceived),
		Attempts:    0,
		MaxAttempts: core.DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.claimExisting(ctx, env.Provider, eventID)
		}
		return core.LedgerClaim{}, err
	}
	return core.LedgerClaim{
		LedgerID: record.ID,
		Created:  true,
		Claimed:  true,
		Status:   core.EventStatusReceived,
	}, nil
}

// claimExisting resolves the duplicate-insert race. Completed, in-flight,
// and dead-letter rows are never re-claimed here; a failed row whose retry
// window has opened is taken with a guarded update so a sweep racing a fresh
// duplicate cannot both win.
func (s *EventLedgerStore) claimExisting(ctx context.Context, provider core.Provider, eventID string) (core.LedgerClaim, error) {
	existing, err := s.load(ctx, provider, eventID)
	if err != nil {
		return core.LedgerClaim{}, err
	}
	claim := core.LedgerClaim{
		LedgerID: existing.ID,
		Status:   core.EventStatus(existing.Status),
		Attempts: existing.Attempts,
	}
	if core.EventStatus(existing.Status) != core.EventStatusFailed {
		return claim, nil
	}
	now := s.now()
	if existing.NextRetryAt != nil && existing.NextRetryAt.After(now) {
		return claim, nil
	}

	result, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusProcessing)).
		Set("attempts = attempts + 1").
		Set("last_attempt_at = ?", now).
		Set("next_retry_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Where("status = ?", string(core.EventStatusFailed)).
		Exec(ctx)
	if err != nil {
		return core.LedgerClaim{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.LedgerClaim{}, err
	}
	if affected != 1 {
		// Lost the race to another worker.
		claim.Status = core.EventStatusProcessing
		return claim, nil
	}
	claim.Claimed = true
	claim.Status = core.EventStatusProcessing
	claim.Attempts = existing.Attempts + 1
	return claim, nil
}

func (s *EventLedgerStore) MarkProcessing(ctx context.Context, ledgerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusProcessing)).
		Set("last_attempt_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(ledgerID)).
		Exec(ctx)
	return err
}

func (s *EventLedgerStore) MarkCompleted(ctx context.Context, ledgerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusCompleted)).
		Set("next_retry_at = NULL").
		Set("error_message = ''").
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(ledgerID)).
		Exec(ctx)
	return err
}

func (s *EventLedgerStore) MarkFailed(ctx context.Context, ledgerID string, cause error, decision core.RetryDecision) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := s.now()
	query := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("error_message = ?", message).
		Set("last_attempt_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(ledgerID))
	if decision.DeadLetter {
		query = query.
			Set("status = ?", string(core.EventStatusDeadLetter)).
			Set("next_retry_at = NULL")
	} else {
		query = query.
			Set("status = ?", string(core.EventStatusFailed)).
			Set("next_retry_at = ?", decision.NextRetryAt.UTC())
	}
	_, err := query.Exec(ctx)
	return err
}

func (s *EventLedgerStore) Get(ctx context.Context, provider core.Provider, eventID string) (core.WebhookEvent, error) {
	record, err := s.load(ctx, provider, eventID)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	return webhookEventToDomain(record), nil
}

func (s *EventLedgerStore) ListRetryDue(ctx context.Context, now time.Time, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*webhookEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.EventStatusFailed)).
		Where("?TableAlias.next_retry_at IS NOT NULL").
		Where("?TableAlias.next_retry_at <= ?", now.UTC()).
		OrderExpr("?TableAlias.next_retry_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return webhookEventsToDomain(records), nil
}

func (s *EventLedgerStore) ListDeadLetters(ctx context.Context, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*webhookEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.EventStatusDeadLetter)).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return webhookEventsToDomain(records), nil
}

func (s *EventLedgerStore) Requeue(ctx context.Context, ledgerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusFailed)).
		Set("attempts = 0").
		Set("next_retry_at = ?", now).
		Set("error_message = ''").
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(ledgerID)).
		Where("status = ?", string(core.EventStatusDeadLetter)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return core.NewNotFoundError(
			fmt.Sprintf("sqlstore: no dead-letter event with id %q", ledgerID), nil,
		)
	}
	return nil
}

func (s *EventLedgerStore) load(ctx context.Context, provider core.Provider, eventID string) (*webhookEventRecord, error) {
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", string(provider)).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError(fmt.Sprintf(
				"sqlstore: webhook event not found for provider %q event %q",
				provider, eventID,
			), nil)
		}
		return nil, err
	}
	return record, nil
}

// storablePayload truncates oversized bodies into a JSON marker that keeps
// the audit trail readable without keeping the full body.
func (s *EventLedgerStore) storablePayload(payload []byte) []byte {
	limit := s.PayloadByteLimit
	if limit <= 0 {
		limit = DefaultPayloadByteLimit
	}
	if len(payload) <= limit {
		return append([]byte(nil), payload...)
	}
	marker, err := json.Marshal(map[string]any{
		"_truncated":    true,
		"original_size": len(payload),
		"prefix":        string(payload[:limit]),
	})
	if err != nil {
		return []byte(`{"_truncated":true}`)
	}
	return marker
}

func (s *EventLedgerStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func webhookEventToDomain(record *webhookEventRecord) core.WebhookEvent {
	if record == nil {
		return core.WebhookEvent{}
	}
	event := core.WebhookEvent{
		ID:           record.ID,
		Provider:     core.Provider(record.Provider),
		EventType:    record.EventType,
		EventID:      record.EventID,
		EntityRef:    record.EntityRef,
		Payload:      append([]byte(nil), record.Payload...),
		Status:       core.EventStatus(record.Status),
		Attempts:     record.Attempts,
		MaxAttempts:  record.MaxAttempts,
		ErrorMessage: record.ErrorMessage,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
	if record.LastAttemptAt != nil {
		value := *record.LastAttemptAt
		event.LastAttemptAt = &value
	}
	if record.NextRetryAt != nil {
		value := *record.NextRetryAt
		event.NextRetryAt = &value
	}
	return event
}

func webhookEventsToDomain(records []*webhookEventRecord) []core.WebhookEvent {
	events := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		events = append(events, webhookEventToDomain(record))
	}
	return events
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
