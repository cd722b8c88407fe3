package biz

import (
	"context"
	"fmt"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/constants"
	"xinyuan_tech/clinic-billing-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// ProcessResult reports how one event went through the pipeline. Status is
// "success" or "error"; a reconciliation failure is carried here and in the
// audit log, never as a returned error, so the caller can still acknowledge
// the delivery.
type ProcessResult struct {
	EventID      string
	EventType    string
	Status       string
	Outcome      string
	ErrorMessage string
}

// StatusPatch is the set of absolute values a lifecycle event applies to an
// existing subscription row. Nil fields are left untouched.
type StatusPatch struct {
	ProductID         *string
	Status            *string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool
}

// WebhookUsecase reconciles local subscription state from verified
// provider events.
type WebhookUsecase struct {
	subRepo   SubscriptionStatusRepo
	logRepo   WebhookLogRepo
	gateway   PaymentGateway
	directory UserDirectory
	rs        *redsync.Redsync
	log       *log.Helper
	now       func() time.Time
}

// NewWebhookUsecase creates the webhook reconciliation usecase
func NewWebhookUsecase(
	subRepo SubscriptionStatusRepo,
	logRepo WebhookLogRepo,
	gateway PaymentGateway,
	directory UserDirectory,
	rs *redsync.Redsync,
	logger log.Logger,
) *WebhookUsecase {
	return &WebhookUsecase{
		subRepo:   subRepo,
		logRepo:   logRepo,
		gateway:   gateway,
		directory: directory,
		rs:        rs,
		log:       log.NewHelper(logger),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// VerifyEvent checks the provider signature over the exact raw body and
// maps the event for processing.
func (uc *WebhookUsecase) VerifyEvent(payload []byte, signature string) (*ProviderEvent, error) {
	return uc.gateway.VerifyEvent(payload, signature)
}

// ProcessEvent runs one verified event through pre-log, dispatch and
// finalize. The returned error is non-nil only when the event could not be
// durably recorded; reconciliation failures are reported inside the result
// so the transport layer still answers 200.
func (uc *WebhookUsecase) ProcessEvent(ctx context.Context, ev *ProviderEvent) (*ProcessResult, error) {
	entry := &WebhookLog{
		EventID:   ev.ID,
		EventType: ev.Type,
		Payload:   ev.Payload,
		Status:    constants.LogStatusProcessing,
		CreatedAt: uc.now(),
	}
	if err := uc.logRepo.Begin(ctx, entry); err != nil {
		uc.log.Errorf("Failed to record event %s: %v", ev.ID, err)
		return nil, errors.NewBizError(errors.ErrCodeEventNotRecorded, "event %s was not durably recorded: %v", ev.ID, err)
	}

	outcome, err := uc.dispatch(ctx, ev)

	result := &ProcessResult{
		EventID:   ev.ID,
		EventType: ev.Type,
		Status:    constants.LogStatusSuccess,
		Outcome:   outcome,
	}
	if err != nil {
		result.Status = constants.LogStatusError
		result.ErrorMessage = err.Error()
		uc.log.Errorf("Reconciliation failed for event %s (%s): %v", ev.ID, ev.Type, err)
	}

	if ferr := uc.logRepo.Finalize(ctx, ev.ID, result.Status, result.ErrorMessage, result.Outcome); ferr != nil {
		// The state change already persisted; the row stays at processing
		// until the stale sweep finalizes it.
		uc.log.Warnf("Failed to finalize log for event %s: %v", ev.ID, ferr)
	}
	return result, nil
}

// dispatch routes the event to its per-variant handler.
func (uc *WebhookUsecase) dispatch(ctx context.Context, ev *ProviderEvent) (string, error) {
	switch ev.Kind {
	case KindCheckoutCompleted:
		return uc.handleCheckoutCompleted(ctx, ev)
	case KindSubscriptionUpdated:
		return uc.handleSubscriptionUpdated(ctx, ev)
	case KindSubscriptionDeleted:
		return uc.handleSubscriptionDeleted(ctx, ev)
	case KindInvoicePaymentSucceeded:
		return uc.handleInvoicePaymentSucceeded(ctx, ev)
	case KindInvoicePaymentFailed:
		return uc.handleInvoicePaymentFailed(ctx, ev)
	default:
		uc.log.Infof("Unhandled event type: %s", ev.Type)
		return constants.OutcomeSkipped, nil
	}
}

// handleCheckoutCompleted creates or refreshes the subscription row for the
// user who completed checkout, keyed on the local user id resolved from the
// checkout customer email.
func (uc *WebhookUsecase) handleCheckoutCompleted(ctx context.Context, ev *ProviderEvent) (string, error) {
	co := ev.Checkout
	if co == nil || co.Mode != "subscription" || co.SubscriptionID == "" {
		uc.log.Infof("Skipping non-subscription checkout event %s", ev.ID)
		return constants.OutcomeSkipped, nil
	}

	provSub, err := uc.gateway.GetSubscription(ctx, co.SubscriptionID)
	if err != nil {
		return "", errors.NewBizError(errors.ErrCodeProviderLookupFailed, "failed to fetch subscription %s: %v", co.SubscriptionID, err)
	}

	userID, err := uc.directory.FindUserIDByEmail(ctx, co.CustomerEmail)
	if err != nil {
		return "", errors.NewBizError(errors.ErrCodeDirectoryUnavailable, "user directory lookup failed: %v", err)
	}
	if userID == "" {
		return "", errors.NewBizError(errors.ErrCodeUserNotFound, "no local user for email %s", co.CustomerEmail)
	}

	return uc.withCustomerLock(ctx, co.CustomerID, func() (string, error) {
		existing, err := uc.subRepo.GetByUserID(ctx, userID)
		if err != nil {
			return "", err
		}
		if existing != nil && !ev.OccurredAt.After(existing.LastEventAt) {
			uc.log.Infof("Ignoring stale checkout event %s for user %s", ev.ID, userID)
			return constants.OutcomeStaleEvent, nil
		}

		now := uc.now()
		row := &SubscriptionStatus{
			UserID:               userID,
			StripeCustomerID:     co.CustomerID,
			StripeSubscriptionID: provSub.ID,
			ProductID:            provSub.ProductID,
			Status:               provSub.Status,
			CurrentPeriodStart:   provSub.PeriodStart,
			CurrentPeriodEnd:     provSub.PeriodEnd,
			CancelAtPeriodEnd:    provSub.CancelAtPeriodEnd,
			LastEventAt:          ev.OccurredAt,
			UpdatedAt:            now,
		}
		created, err := uc.subRepo.Upsert(ctx, row)
		if err != nil {
			return "", err
		}
		if created {
			uc.log.Infof("Created subscription status for user %s (customer %s)", userID, co.CustomerID)
			return constants.OutcomeCreated, nil
		}
		uc.log.Infof("Refreshed subscription status for user %s (customer %s)", userID, co.CustomerID)
		return constants.OutcomeUpdated, nil
	})
}

// handleSubscriptionUpdated mirrors provider-side plan or status changes.
// A missing local row is a reconciliation failure: the event targets a
// subscription this service has never seen.
func (uc *WebhookUsecase) handleSubscriptionUpdated(ctx context.Context, ev *ProviderEvent) (string, error) {
	sub := ev.Subscription
	if sub == nil {
		return "", fmt.Errorf("event %s carries no subscription object", ev.ID)
	}

	patch := StatusPatch{
		ProductID:         &sub.ProductID,
		Status:            &sub.Status,
		PeriodStart:       &sub.PeriodStart,
		PeriodEnd:         &sub.PeriodEnd,
		CancelAtPeriodEnd: &sub.CancelAtPeriodEnd,
	}
	outcome, err := uc.applyTransition(ctx, sub.CustomerID, ev.OccurredAt, patch)
	if err != nil {
		return "", err
	}
	if outcome == constants.OutcomeNoMatch {
		return outcome, errors.NewBizError(errors.ErrCodeSubscriptionNotFound, "no subscription status for customer %s", sub.CustomerID)
	}
	return outcome, nil
}

// handleSubscriptionDeleted marks the row canceled. A missing row is a
// harmless no-op here: deletion of something we never tracked needs no
// remediation, only the recorded outcome.
func (uc *WebhookUsecase) handleSubscriptionDeleted(ctx context.Context, ev *ProviderEvent) (string, error) {
	sub := ev.Subscription
	if sub == nil {
		return "", fmt.Errorf("event %s carries no subscription object", ev.ID)
	}

	canceled := constants.StatusCanceled
	noRenew := false
	patch := StatusPatch{
		Status:            &canceled,
		CancelAtPeriodEnd: &noRenew,
	}
	return uc.applyTransition(ctx, sub.CustomerID, ev.OccurredAt, patch)
}

// handleInvoicePaymentSucceeded refreshes period bounds from the provider
// after a successful renewal charge.
func (uc *WebhookUsecase) handleInvoicePaymentSucceeded(ctx context.Context, ev *ProviderEvent) (string, error) {
	inv := ev.Invoice
	if inv == nil || inv.SubscriptionID == "" {
		uc.log.Infof("Skipping invoice event %s not tied to a subscription", ev.ID)
		return constants.OutcomeSkipped, nil
	}

	provSub, err := uc.gateway.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return "", errors.NewBizError(errors.ErrCodeProviderLookupFailed, "failed to fetch subscription %s: %v", inv.SubscriptionID, err)
	}

	active := constants.StatusActive
	patch := StatusPatch{
		Status:      &active,
		PeriodStart: &provSub.PeriodStart,
		PeriodEnd:   &provSub.PeriodEnd,
	}
	customerID := inv.CustomerID
	if customerID == "" {
		customerID = provSub.CustomerID
	}
	return uc.applyTransition(ctx, customerID, ev.OccurredAt, patch)
}

// handleInvoicePaymentFailed moves the row to past_due.
func (uc *WebhookUsecase) handleInvoicePaymentFailed(ctx context.Context, ev *ProviderEvent) (string, error) {
	inv := ev.Invoice
	if inv == nil || inv.CustomerID == "" {
		uc.log.Infof("Skipping invoice event %s without a customer", ev.ID)
		return constants.OutcomeSkipped, nil
	}

	pastDue := constants.StatusPastDue
	patch := StatusPatch{Status: &pastDue}
	return uc.applyTransition(ctx, inv.CustomerID, ev.OccurredAt, patch)
}

// applyTransition is the single reconciliation primitive for lifecycle
// events: locate the row by customer id, refuse events older than the last
// applied one, apply the patch as absolute values, save. All handlers
// funnel through here so redelivery and reordering stay commutative.
func (uc *WebhookUsecase) applyTransition(ctx context.Context, customerID string, occurredAt time.Time, patch StatusPatch) (string, error) {
	return uc.withCustomerLock(ctx, customerID, func() (string, error) {
		sub, err := uc.subRepo.GetByCustomerID(ctx, customerID)
		if err != nil {
			return "", err
		}
		if sub == nil {
			return constants.OutcomeNoMatch, nil
		}
		if !occurredAt.After(sub.LastEventAt) {
			uc.log.Infof("Ignoring stale event for customer %s (event at %s, row at %s)",
				customerID, occurredAt.Format(time.RFC3339), sub.LastEventAt.Format(time.RFC3339))
			return constants.OutcomeStaleEvent, nil
		}

		if patch.ProductID != nil {
			sub.ProductID = *patch.ProductID
		}
		if patch.Status != nil {
			sub.Status = *patch.Status
		}
		if patch.PeriodStart != nil {
			sub.CurrentPeriodStart = *patch.PeriodStart
		}
		if patch.PeriodEnd != nil {
			sub.CurrentPeriodEnd = *patch.PeriodEnd
		}
		if patch.CancelAtPeriodEnd != nil {
			sub.CancelAtPeriodEnd = *patch.CancelAtPeriodEnd
		}
		sub.LastEventAt = occurredAt
		sub.UpdatedAt = uc.now()

		if err := uc.subRepo.Save(ctx, sub); err != nil {
			return "", err
		}
		return constants.OutcomeUpdated, nil
	})
}

// withCustomerLock serializes reconciliation per customer so concurrent
// deliveries for the same customer cannot interleave between the staleness
// check and the save.
func (uc *WebhookUsecase) withCustomerLock(ctx context.Context, customerID string, fn func() (string, error)) (string, error) {
	if uc.rs == nil || customerID == "" {
		return fn()
	}

	mutex := uc.rs.NewMutex(
		fmt.Sprintf("billing:reconcile:customer:%s", customerID),
		redsync.WithExpiry(constants.ReconcileLockExpiration),
		redsync.WithTries(constants.ReconcileLockRetries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return "", fmt.Errorf("failed to acquire reconcile lock for customer %s: %w", customerID, err)
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			uc.log.Warnf("Failed to unlock reconcile lock for customer %s: %v", customerID, err)
		}
	}()

	return fn()
}

// ReplayEvent re-runs reconciliation for an already-logged event from its
// stored payload. The payload was signature-verified on first delivery, so
// replay only parses it.
func (uc *WebhookUsecase) ReplayEvent(ctx context.Context, eventID string) (*ProcessResult, error) {
	uc.log.Infof("ReplayEvent: eventID=%s", eventID)

	entry, err := uc.logRepo.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errors.NewBizError(errors.ErrCodeLogNotFound, "no webhook log for event %s", eventID)
	}

	ev, err := uc.gateway.ParseEvent(entry.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored payload for event %s: %w", eventID, err)
	}
	return uc.ProcessEvent(ctx, ev)
}

// ListLogs returns audit log rows newest first, optionally filtered by
// status.
func (uc *WebhookUsecase) ListLogs(ctx context.Context, status string, page, pageSize int) ([]*WebhookLog, int, error) {
	return uc.logRepo.ListLogs(ctx, status, page, pageSize)
}

// SweepStaleLogs finalizes log rows abandoned in processing, typically
// after a crash between state mutation and finalize.
func (uc *WebhookUsecase) SweepStaleLogs(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = constants.StaleProcessingAfter
	}
	cutoff := uc.now().Add(-olderThan)

	count, err := uc.logRepo.MarkStaleProcessing(ctx, cutoff)
	if err != nil {
		uc.log.Errorf("Failed to sweep stale webhook logs: %v", err)
		return 0, err
	}
	if count > 0 {
		uc.log.Infof("Swept %d stale webhook log rows", count)
	}
	return count, nil
}

// DeliveryReport returns per-status counts of log rows created since the
// given time, for the scheduled delivery summary.
func (uc *WebhookUsecase) DeliveryReport(ctx context.Context, since time.Time) (map[string]int, error) {
	counts, err := uc.logRepo.CountByStatusSince(ctx, since)
	if err != nil {
		uc.log.Errorf("Failed to build delivery report: %v", err)
		return nil, err
	}
	return counts, nil
}
