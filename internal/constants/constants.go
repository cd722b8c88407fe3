package constants

import "time"

// Cache
const (
	// DefaultCacheExpiration default cache TTL for subscription status reads
	DefaultCacheExpiration = 5 * time.Minute
	// NullCacheExpiration TTL for cached "no row" markers (prevents cache penetration)
	NullCacheExpiration = time.Minute
)

// Pagination
const (
	// DefaultPageSize default page size
	DefaultPageSize = 10
	// MaxPageSize max page size
	MaxPageSize = 100
)

// Distributed locks
const (
	// ReconcileLockExpiration per-customer reconciliation lock TTL
	ReconcileLockExpiration = 30 * time.Second
	// ReconcileLockRetries lock acquisition attempts before giving up
	ReconcileLockRetries = 8
)

// Maintenance
const (
	// StaleProcessingAfter age at which a webhook log row still marked
	// processing is considered abandoned and finalized as error
	StaleProcessingAfter = 15 * time.Minute
)

// Subscription status (mirrors the provider's subscription lifecycle)
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusUnpaid   = "unpaid"
)

// Webhook log status
const (
	LogStatusProcessing = "processing"
	LogStatusSuccess    = "success"
	LogStatusError      = "error"
)

// Provider event types handled by the reconciliation state machine
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Reconciliation outcomes
const (
	OutcomeCreated    = "created"
	OutcomeUpdated    = "updated"
	OutcomeNoMatch    = "no_matching_record"
	OutcomeStaleEvent = "stale_event"
	OutcomeSkipped    = "skipped"
)
