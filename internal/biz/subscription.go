package biz

import (
	"context"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// SubscriptionStatus local subscription record, at most one row per user.
type SubscriptionStatus struct {
	ID                   uint64
	UserID               string
	StripeCustomerID     string
	StripeSubscriptionID string
	ProductID            string
	Status               string // active, trialing, past_due, canceled, unpaid
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	LastEventAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsActive reports whether the subscription currently grants access.
func (s *SubscriptionStatus) IsActive(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != constants.StatusActive && s.Status != constants.StatusTrialing {
		return false
	}
	return s.CurrentPeriodEnd.After(now)
}

// SubscriptionStatusRepo subscription status repository interface
type SubscriptionStatusRepo interface {
	GetByUserID(ctx context.Context, userID string) (*SubscriptionStatus, error)
	GetByCustomerID(ctx context.Context, customerID string) (*SubscriptionStatus, error)
	// Upsert creates or replaces the row keyed on user_id. Reports whether
	// a new row was created.
	Upsert(ctx context.Context, sub *SubscriptionStatus) (bool, error)
	Save(ctx context.Context, sub *SubscriptionStatus) error
}

// SubscriptionUsecase read-side subscription queries
type SubscriptionUsecase struct {
	repo SubscriptionStatusRepo
	log  *log.Helper
}

// NewSubscriptionUsecase creates the subscription query usecase
func NewSubscriptionUsecase(repo SubscriptionStatusRepo, logger log.Logger) *SubscriptionUsecase {
	return &SubscriptionUsecase{
		repo: repo,
		log:  log.NewHelper(logger),
	}
}

// GetSubscriptionStatus returns the current subscription record for a
// user, or nil when the user never completed a checkout.
func (uc *SubscriptionUsecase) GetSubscriptionStatus(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	sub, err := uc.repo.GetByUserID(ctx, userID)
	if err != nil {
		uc.log.Errorf("Failed to get subscription status for user %s: %v", userID, err)
		return nil, err
	}
	return sub, nil
}
