package model

import "time"

// WebhookLog durable record of every verified inbound event. Inserted with
// status=processing before dispatch, finalized to success/error after, and
// kept forever as the audit trail and replay substrate.
type WebhookLog struct {
	ID           uint64     `gorm:"primaryKey;column:webhook_log_id;autoIncrement"`
	EventID      string     `gorm:"column:event_id;type:varchar(64);uniqueIndex"` // provider-assigned, natural idempotency key
	EventType    string     `gorm:"column:event_type;index"`
	Payload      []byte     `gorm:"column:payload;type:mediumblob"` // verbatim event body
	Status       string     `gorm:"column:status;index"`            // processing, success, error
	ErrorMessage string     `gorm:"column:error_message"`
	Outcome      string     `gorm:"column:outcome"` // created, updated, no_matching_record, stale_event, skipped
	ProcessedAt  *time.Time `gorm:"column:processed_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
}

func (WebhookLog) TableName() string { return "webhook_log" }
