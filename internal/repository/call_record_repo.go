package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ventalink/lead-voice-service/internal/domain"
	"gorm.io/gorm"
)

// CallArchiver persists completed calls for reporting. Implementations must
// tolerate being called once per call_ended webhook.
type CallArchiver interface {
	ArchiveCall(ctx context.Context, rec *domain.ConversationRecord, startedAt, endedAt time.Time) error
}

// CallHistory lists a lead's archived calls for the operator API.
type CallHistory interface {
	FindByLeadID(ctx context.Context, leadID string) ([]*domain.CallRecord, error)
}

// CallRecordRepository handles database operations for archived calls.
type CallRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository creates a new call record repository.
func NewCallRecordRepository(db *gorm.DB) *CallRecordRepository {
	return &CallRecordRepository{db: db}
}

// Create creates a new call record.
func (r *CallRecordRepository) Create(ctx context.Context, record *domain.CallRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

// GetByCallSid retrieves a call record by its provider call SID. Returns
// (nil, nil) when no record exists.
func (r *CallRecordRepository) GetByCallSid(ctx context.Context, callSid string) (*domain.CallRecord, error) {
	var record domain.CallRecord
	if err := r.db.WithContext(ctx).Where("call_sid = ?", callSid).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return &record, nil
}

// FindByLeadID returns all archived calls for a lead, newest first.
func (r *CallRecordRepository) FindByLeadID(ctx context.Context, leadID string) ([]*domain.CallRecord, error) {
	var records []*domain.CallRecord
	if err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("ended_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find call records: %w", err)
	}
	return records, nil
}

// CreateMessagesBatch inserts transcript turns for an archived call.
func (r *CallRecordRepository) CreateMessagesBatch(ctx context.Context, messages []*domain.CallMessage) error {
	if len(messages) == 0 {
		return nil
	}
	now := time.Now()
	for _, m := range messages {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
	}
	if err := r.db.WithContext(ctx).CreateInBatches(messages, 100).Error; err != nil {
		return fmt.Errorf("failed to create call messages: %w", err)
	}
	return nil
}

// ArchiveCall writes the completed call and its transcript in one pass. An
// existing record for the same call SID makes this a no-op, so a retried
// webhook does not duplicate rows.
func (r *CallRecordRepository) ArchiveCall(ctx context.Context, rec *domain.ConversationRecord, startedAt, endedAt time.Time) error {
	if rec.CallSid != "" {
		existing, err := r.GetByCallSid(ctx, rec.CallSid)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
	}

	record := &domain.CallRecord{
		ID:              uuid.New().String(),
		LeadID:          rec.LeadID,
		LeadName:        rec.LeadName,
		CallSid:         rec.CallSid,
		Stage:           string(rec.Stage),
		DurationSeconds: rec.CallDuration,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
	}
	if rec.Analysis != nil {
		record.InterestLevel = rec.Analysis.InterestLevel
		record.Priority = rec.Analysis.Priority
		record.HumanFollowupNeeded = rec.Analysis.HumanFollowupNeeded
		record.Summary = rec.Analysis.Summary
	}

	if err := r.Create(ctx, record); err != nil {
		return err
	}

	messages := make([]*domain.CallMessage, 0, len(rec.Transcript))
	for _, entry := range rec.Transcript {
		messages = append(messages, &domain.CallMessage{
			CallRecordID: record.ID,
			Role:         entry.Role,
			Content:      entry.Text,
			SpokenAt:     entry.Timestamp,
		})
	}
	return r.CreateMessagesBatch(ctx, messages)
}
