package biz

import (
	"context"
	"time"
)

// EventKind is the tagged variant of a provider event after mapping the
// raw event-type string.
type EventKind string

const (
	KindCheckoutCompleted       EventKind = "checkout_completed"
	KindSubscriptionUpdated     EventKind = "subscription_updated"
	KindSubscriptionDeleted     EventKind = "subscription_deleted"
	KindInvoicePaymentSucceeded EventKind = "invoice_payment_succeeded"
	KindInvoicePaymentFailed    EventKind = "invoice_payment_failed"
	KindUnhandled               EventKind = "unhandled"
)

// ProviderEvent is a verified provider notification, mapped into the
// variant set the reconciliation state machine dispatches on. Exactly one
// of Checkout/Subscription/Invoice is populated depending on Kind;
// Unhandled events carry only the raw type.
type ProviderEvent struct {
	ID         string
	Type       string // raw provider event name
	Kind       EventKind
	OccurredAt time.Time
	Payload    []byte // verbatim signed body, kept for the audit log

	Checkout     *CheckoutSession
	Subscription *ProviderSubscription
	Invoice      *ProviderInvoice
}

// CheckoutSession is the slice of a checkout.session.completed payload the
// reconciler needs.
type CheckoutSession struct {
	Mode           string // only "subscription" checkouts are reconciled
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
}

// ProviderSubscription is the authoritative subscription state fetched
// from (or carried by) the provider.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	ProductID         string
	Status            string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// ProviderInvoice is the slice of an invoice payload the reconciler needs.
// SubscriptionID is empty for one-off invoices.
type ProviderInvoice struct {
	CustomerID     string
	SubscriptionID string
}

// PaymentGateway is the payment provider client interface (anti-corruption layer).
type PaymentGateway interface {
	// VerifyEvent checks the signature over the raw body and maps the event.
	// The body must be the exact bytes the provider signed.
	VerifyEvent(payload []byte, signature string) (*ProviderEvent, error)
	// ParseEvent maps a stored payload without signature verification,
	// used when replaying already-verified events from the audit log.
	ParseEvent(payload []byte) (*ProviderEvent, error)
	// GetSubscription fetches authoritative period bounds and the plan
	// product id, which the lighter session/invoice payloads omit.
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
}

// UserDirectory is the auth collaborator interface (anti-corruption layer).
type UserDirectory interface {
	// FindUserIDByEmail resolves a checkout customer email to a local user
	// id. Returns "" when no user matches.
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}
