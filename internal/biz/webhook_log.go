package biz

import (
	"context"
	"time"
)

// WebhookLog audit record for one inbound event
type WebhookLog struct {
	ID           uint64
	EventID      string
	EventType    string
	Payload      []byte
	Status       string // processing, success, error
	ErrorMessage string
	Outcome      string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

// WebhookLogRepo webhook audit log repository interface
type WebhookLogRepo interface {
	// Begin durably records the event with status=processing before any
	// state mutation. Redelivery of a known event_id resets the existing
	// row to processing instead of failing.
	Begin(ctx context.Context, entry *WebhookLog) error
	// Finalize updates the row for event_id with the terminal status,
	// error message and reconciliation outcome.
	Finalize(ctx context.Context, eventID, status, errorMessage, outcome string) error
	GetByEventID(ctx context.Context, eventID string) (*WebhookLog, error)
	// ListLogs returns rows newest first, optionally filtered by status.
	ListLogs(ctx context.Context, status string, page, pageSize int) ([]*WebhookLog, int, error)
	// MarkStaleProcessing finalizes rows stuck in processing since before
	// the cutoff as errors, returning how many were swept.
	MarkStaleProcessing(ctx context.Context, cutoff time.Time) (int, error)
	// CountByStatusSince reports row counts per status created after since.
	CountByStatusSince(ctx context.Context, since time.Time) (map[string]int, error)
}
