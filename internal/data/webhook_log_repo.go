package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/constants"
	"xinyuan_tech/clinic-billing-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// webhookLogRepo webhook audit log repository implementation
type webhookLogRepo struct {
	data *Data
	log  *log.Helper
}

// NewWebhookLogRepo creates the webhook audit log repository
func NewWebhookLogRepo(data *Data, logger log.Logger) biz.WebhookLogRepo {
	return &webhookLogRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Begin inserts the pre-processing record. A redelivered event_id resets
// the existing row to processing so the new attempt is visible in the log.
func (r *webhookLogRepo) Begin(ctx context.Context, entry *biz.WebhookLog) error {
	m := &model.WebhookLog{
		EventID:   entry.EventID,
		EventType: entry.EventType,
		Payload:   entry.Payload,
		Status:    entry.Status,
		CreatedAt: entry.CreatedAt,
	}
	err := r.data.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "outcome", "processed_at"}),
	}).Create(m).Error
	if err != nil {
		r.log.Errorf("Failed to record webhook event %s: %v", entry.EventID, err)
		return err
	}
	return nil
}

// Finalize writes the terminal status for the event's row.
func (r *webhookLogRepo) Finalize(ctx context.Context, eventID, status, errorMessage, outcome string) error {
	now := time.Now().UTC()
	result := r.data.db.WithContext(ctx).Model(&model.WebhookLog{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":        status,
			"error_message": errorMessage,
			"outcome":       outcome,
			"processed_at":  &now,
		})
	if result.Error != nil {
		r.log.Errorf("Failed to finalize webhook log for event %s: %v", eventID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no webhook log row for event %s", eventID)
	}
	return nil
}

// GetByEventID returns the log row, or nil when absent.
func (r *webhookLogRepo) GetByEventID(ctx context.Context, eventID string) (*biz.WebhookLog, error) {
	var m model.WebhookLog
	err := r.data.db.WithContext(ctx).Where("event_id = ?", eventID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get webhook log for event %s: %v", eventID, err)
		return nil, err
	}
	return toBizWebhookLog(&m), nil
}

// ListLogs returns log rows newest first, optionally filtered by status.
func (r *webhookLogRepo) ListLogs(ctx context.Context, status string, page, pageSize int) ([]*biz.WebhookLog, int, error) {
	var models []model.WebhookLog
	var total int64

	query := r.data.db.WithContext(ctx).Model(&model.WebhookLog{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		r.log.Errorf("Failed to count webhook logs: %v", err)
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.
		Order("created_at DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&models).Error; err != nil {
		r.log.Errorf("Failed to list webhook logs: %v", err)
		return nil, 0, err
	}

	items := make([]*biz.WebhookLog, len(models))
	for i := range models {
		items[i] = toBizWebhookLog(&models[i])
	}
	return items, int(total), nil
}

// MarkStaleProcessing finalizes rows abandoned in processing before cutoff.
func (r *webhookLogRepo) MarkStaleProcessing(ctx context.Context, cutoff time.Time) (int, error) {
	now := time.Now().UTC()
	result := r.data.db.WithContext(ctx).Model(&model.WebhookLog{}).
		Where("status = ? AND created_at < ?", constants.LogStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":        constants.LogStatusError,
			"error_message": "processing timed out",
			"processed_at":  &now,
		})
	if result.Error != nil {
		r.log.Errorf("Failed to mark stale webhook logs: %v", result.Error)
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// CountByStatusSince reports per-status counts of rows created after since.
func (r *webhookLogRepo) CountByStatusSince(ctx context.Context, since time.Time) (map[string]int, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.data.db.WithContext(ctx).Model(&model.WebhookLog{}).
		Select("status, count(*) as total").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		r.log.Errorf("Failed to count webhook logs by status: %v", err)
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = int(row.Total)
	}
	return counts, nil
}

func toBizWebhookLog(m *model.WebhookLog) *biz.WebhookLog {
	return &biz.WebhookLog{
		ID:           m.ID,
		EventID:      m.EventID,
		EventType:    m.EventType,
		Payload:      m.Payload,
		Status:       m.Status,
		ErrorMessage: m.ErrorMessage,
		Outcome:      m.Outcome,
		ProcessedAt:  m.ProcessedAt,
		CreatedAt:    m.CreatedAt,
	}
}
