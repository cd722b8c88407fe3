package service

import (
	"context"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/auth"
	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// BillingService serves the internal query and admin API: subscription
// lookups for other services and audit log inspection for operators.
type BillingService struct {
	subUc *biz.SubscriptionUsecase
	whUc  *biz.WebhookUsecase
	log   *log.Helper
}

// NewBillingService creates the billing query service
func NewBillingService(subUc *biz.SubscriptionUsecase, whUc *biz.WebhookUsecase, logger log.Logger) *BillingService {
	return &BillingService{
		subUc: subUc,
		whUc:  whUc,
		log:   log.NewHelper(logger),
	}
}

// SubscriptionReply current subscription state for one user
type SubscriptionReply struct {
	UserID               string `json:"user_id"`
	IsActive             bool   `json:"is_active"`
	Status               string `json:"status,omitempty"`
	ProductID            string `json:"product_id,omitempty"`
	StripeCustomerID     string `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodStart   int64  `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     int64  `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool   `json:"cancel_at_period_end,omitempty"`
}

// WebhookLogItem one audit log row
type WebhookLogItem struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	Status       string `json:"status"`
	Outcome      string `json:"outcome,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ProcessedAt  int64  `json:"processed_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// WebhookLogListReply paginated audit log rows
type WebhookLogListReply struct {
	Items    []*WebhookLogItem `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ReplayReply result of re-running one logged event
type ReplayReply struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	Status       string `json:"status"`
	Outcome      string `json:"outcome,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// GetSubscription returns the current subscription state for a user. A user
// who never completed checkout gets is_active=false rather than a 404, so
// callers gate features with one code path.
func (s *BillingService) GetSubscription(ctx context.Context, userID string) (*SubscriptionReply, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	sub, err := s.subUc.GetSubscriptionStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &SubscriptionReply{UserID: userID, IsActive: false}, nil
	}

	return &SubscriptionReply{
		UserID:               sub.UserID,
		IsActive:             sub.IsActive(time.Now().UTC()),
		Status:               sub.Status,
		ProductID:            sub.ProductID,
		StripeCustomerID:     sub.StripeCustomerID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		CurrentPeriodStart:   unixOrZero(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixOrZero(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}, nil
}

// ListWebhookLogs returns audit log rows newest first, optionally filtered
// by status.
func (s *BillingService) ListWebhookLogs(ctx context.Context, status string, page, pageSize int) (*WebhookLogListReply, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}

	items, total, err := s.whUc.ListLogs(ctx, status, page, pageSize)
	if err != nil {
		return nil, err
	}

	replyItems := make([]*WebhookLogItem, len(items))
	for i, item := range items {
		replyItems[i] = &WebhookLogItem{
			EventID:      item.EventID,
			EventType:    item.EventType,
			Status:       item.Status,
			Outcome:      item.Outcome,
			ErrorMessage: item.ErrorMessage,
			CreatedAt:    item.CreatedAt.Unix(),
		}
		if item.ProcessedAt != nil {
			replyItems[i].ProcessedAt = item.ProcessedAt.Unix()
		}
	}

	return &WebhookLogListReply{
		Items:    replyItems,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// ReplayWebhookEvent re-runs reconciliation for a logged event from its
// stored payload.
func (s *BillingService) ReplayWebhookEvent(ctx context.Context, eventID string) (*ReplayReply, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	result, err := s.whUc.ReplayEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &ReplayReply{
		EventID:      result.EventID,
		EventType:    result.EventType,
		Status:       result.Status,
		Outcome:      result.Outcome,
		ErrorMessage: result.ErrorMessage,
	}, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
