package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/constants"
	"xinyuan_tech/clinic-billing-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	subStatusCachePrefix = "billing:substatus:user:"
	nullCacheMarker      = "null"
)

// subscriptionStatusRepo subscription status repository implementation
type subscriptionStatusRepo struct {
	data *Data
	log  *log.Helper
}

// NewSubscriptionStatusRepo creates the subscription status repository
func NewSubscriptionStatusRepo(data *Data, logger log.Logger) biz.SubscriptionStatusRepo {
	return &subscriptionStatusRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetByUserID returns the row for a user, or nil when absent. Reads go
// through a short redis cache; "no row" is cached too, with a shorter TTL.
func (r *subscriptionStatusRepo) GetByUserID(ctx context.Context, userID string) (*biz.SubscriptionStatus, error) {
	if cached, ok := r.cacheGet(ctx, userID); ok {
		return cached, nil
	}

	var m model.SubscriptionStatus
	err := r.data.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.cacheSet(ctx, userID, nil)
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get subscription status for user %s: %v", userID, err)
		return nil, err
	}

	sub := toBizSubscription(&m)
	r.cacheSet(ctx, userID, sub)
	return sub, nil
}

// GetByCustomerID locates the row by provider customer id, or nil.
func (r *subscriptionStatusRepo) GetByCustomerID(ctx context.Context, customerID string) (*biz.SubscriptionStatus, error) {
	var m model.SubscriptionStatus
	err := r.data.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get subscription status for customer %s: %v", customerID, err)
		return nil, err
	}
	return toBizSubscription(&m), nil
}

// Upsert creates or replaces the row keyed on user_id.
func (r *subscriptionStatusRepo) Upsert(ctx context.Context, sub *biz.SubscriptionStatus) (bool, error) {
	var existing model.SubscriptionStatus
	err := r.data.db.WithContext(ctx).Where("user_id = ?", sub.UserID).First(&existing).Error
	created := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !created {
		r.log.Errorf("Failed to check existing subscription status for user %s: %v", sub.UserID, err)
		return false, err
	}

	m := toModelSubscription(sub)
	m.ID = 0
	if created {
		m.CreatedAt = time.Now().UTC()
	} else {
		m.CreatedAt = existing.CreatedAt
	}

	// Insert with the user_id conflict target so the update path and a
	// concurrent insert for the same user both resolve to one row.
	err = r.data.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_customer_id", "stripe_subscription_id", "product_id",
			"status", "current_period_start", "current_period_end",
			"cancel_at_period_end", "last_event_at", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		r.log.Errorf("Failed to upsert subscription status for user %s: %v", sub.UserID, err)
		return false, err
	}

	r.cacheInvalidate(ctx, sub.UserID)
	return created, nil
}

// Save persists an already-loaded row in place.
func (r *subscriptionStatusRepo) Save(ctx context.Context, sub *biz.SubscriptionStatus) error {
	m := toModelSubscription(sub)
	m.ID = sub.ID
	m.CreatedAt = sub.CreatedAt
	if err := r.data.db.WithContext(ctx).Save(m).Error; err != nil {
		r.log.Errorf("Failed to save subscription status for user %s: %v", sub.UserID, err)
		return err
	}
	r.cacheInvalidate(ctx, sub.UserID)
	return nil
}

func (r *subscriptionStatusRepo) cacheGet(ctx context.Context, userID string) (*biz.SubscriptionStatus, bool) {
	if r.data.rdb == nil {
		return nil, false
	}
	raw, err := r.data.rdb.Get(ctx, subStatusCachePrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warnf("Subscription status cache read failed for user %s: %v", userID, err)
		return nil, false
	}
	if raw == nullCacheMarker {
		return nil, true
	}
	var sub biz.SubscriptionStatus
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, false
	}
	return &sub, true
}

func (r *subscriptionStatusRepo) cacheSet(ctx context.Context, userID string, sub *biz.SubscriptionStatus) {
	if r.data.rdb == nil {
		return
	}
	key := subStatusCachePrefix + userID
	if sub == nil {
		if err := r.data.rdb.Set(ctx, key, nullCacheMarker, constants.NullCacheExpiration).Err(); err != nil {
			r.log.Warnf("Subscription status cache write failed for user %s: %v", userID, err)
		}
		return
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return
	}
	if err := r.data.rdb.Set(ctx, key, raw, constants.DefaultCacheExpiration).Err(); err != nil {
		r.log.Warnf("Subscription status cache write failed for user %s: %v", userID, err)
	}
}

func (r *subscriptionStatusRepo) cacheInvalidate(ctx context.Context, userID string) {
	if r.data.rdb == nil {
		return
	}
	if err := r.data.rdb.Del(ctx, subStatusCachePrefix+userID).Err(); err != nil {
		r.log.Warnf("Subscription status cache invalidation failed for user %s: %v", userID, err)
	}
}

func toBizSubscription(m *model.SubscriptionStatus) *biz.SubscriptionStatus {
	return &biz.SubscriptionStatus{
		ID:                   m.ID,
		UserID:               m.UserID,
		StripeCustomerID:     m.StripeCustomerID,
		StripeSubscriptionID: m.StripeSubscriptionID,
		ProductID:            m.ProductID,
		Status:               m.Status,
		CurrentPeriodStart:   m.CurrentPeriodStart,
		CurrentPeriodEnd:     m.CurrentPeriodEnd,
		CancelAtPeriodEnd:    m.CancelAtPeriodEnd,
		LastEventAt:          m.LastEventAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func toModelSubscription(sub *biz.SubscriptionStatus) *model.SubscriptionStatus {
	return &model.SubscriptionStatus{
		ID:                   sub.ID,
		UserID:               sub.UserID,
		StripeCustomerID:     sub.StripeCustomerID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		ProductID:            sub.ProductID,
		Status:               sub.Status,
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		LastEventAt:          sub.LastEventAt,
		CreatedAt:            sub.CreatedAt,
		UpdatedAt:            sub.UpdatedAt,
	}
}
