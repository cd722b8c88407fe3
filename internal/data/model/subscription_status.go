package model

import "time"

// SubscriptionStatus local mirror of the provider subscription, one row per user.
// Rows are created on first checkout completion and mutated in place; they
// are never deleted (cancellation flips status instead).
type SubscriptionStatus struct {
	ID                   uint64    `gorm:"primaryKey;column:subscription_status_id;autoIncrement"`
	UserID               string    `gorm:"column:user_id;type:varchar(36);uniqueIndex"`
	StripeCustomerID     string    `gorm:"column:stripe_customer_id;index"`
	StripeSubscriptionID string    `gorm:"column:stripe_subscription_id"`
	ProductID            string    `gorm:"column:product_id"`
	Status               string    `gorm:"column:status"` // active, trialing, past_due, canceled, unpaid
	CurrentPeriodStart   time.Time `gorm:"column:current_period_start"`
	CurrentPeriodEnd     time.Time `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool      `gorm:"column:cancel_at_period_end;default:false"`
	LastEventAt          time.Time `gorm:"column:last_event_at"` // provider timestamp of the last applied event
	CreatedAt            time.Time `gorm:"column:created_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (SubscriptionStatus) TableName() string { return "subscription_status" }
