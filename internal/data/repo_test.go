package data

import (
	"context"
	"testing"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/constants"
	"xinyuan_tech/clinic-billing-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestData(t *testing.T) *Data {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.SubscriptionStatus{}, &model.WebhookLog{}))

	t.Cleanup(func() {
		db.Exec("DELETE FROM subscription_status")
		db.Exec("DELETE FROM webhook_log")
	})

	// No redis in tests: cache helpers degrade to direct DB access.
	return &Data{db: db}
}

func testLogger() log.Logger {
	return log.NewStdLogger(discard{})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func sampleStatus(userID, customerID string) *biz.SubscriptionStatus {
	now := time.Now().UTC().Truncate(time.Second)
	return &biz.SubscriptionStatus{
		UserID:               userID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: "sub_1",
		ProductID:            "prod_basic",
		Status:               constants.StatusActive,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     now.Add(30 * 24 * time.Hour),
		LastEventAt:          now,
		UpdatedAt:            now,
	}
}

func TestSubscriptionStatusRepoUpsertAndGet(t *testing.T) {
	repo := NewSubscriptionStatusRepo(newTestData(t), testLogger())
	ctx := context.Background()

	created, err := repo.Upsert(ctx, sampleStatus("user-1", "cus_1"))
	require.NoError(t, err)
	assert.True(t, created)

	got, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
	assert.Equal(t, constants.StatusActive, got.Status)

	// Second upsert for the same user replaces, not duplicates.
	updated := sampleStatus("user-1", "cus_1")
	updated.ProductID = "prod_premium"
	created, err = repo.Upsert(ctx, updated)
	require.NoError(t, err)
	assert.False(t, created)

	got, err = repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "prod_premium", got.ProductID)

	byCustomer, err := repo.GetByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	require.NotNil(t, byCustomer)
	assert.Equal(t, "user-1", byCustomer.UserID)
}

func TestSubscriptionStatusRepoMissingRowIsNil(t *testing.T) {
	repo := NewSubscriptionStatusRepo(newTestData(t), testLogger())
	ctx := context.Background()

	got, err := repo.GetByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.GetByCustomerID(ctx, "cus_none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubscriptionStatusRepoSave(t *testing.T) {
	repo := NewSubscriptionStatusRepo(newTestData(t), testLogger())
	ctx := context.Background()

	_, err := repo.Upsert(ctx, sampleStatus("user-1", "cus_1"))
	require.NoError(t, err)

	row, err := repo.GetByCustomerID(ctx, "cus_1")
	require.NoError(t, err)

	row.Status = constants.StatusPastDue
	row.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Save(ctx, row))

	got, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusPastDue, got.Status)
}

func sampleLog(eventID string, createdAt time.Time) *biz.WebhookLog {
	return &biz.WebhookLog{
		EventID:   eventID,
		EventType: constants.EventCheckoutCompleted,
		Payload:   []byte(`{"id":"` + eventID + `"}`),
		Status:    constants.LogStatusProcessing,
		CreatedAt: createdAt,
	}
}

func TestWebhookLogRepoBeginFinalize(t *testing.T) {
	repo := NewWebhookLogRepo(newTestData(t), testLogger())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Begin(ctx, sampleLog("evt_1", now)))

	entry, err := repo.GetByEventID(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, constants.LogStatusProcessing, entry.Status)
	assert.Nil(t, entry.ProcessedAt)

	require.NoError(t, repo.Finalize(ctx, "evt_1", constants.LogStatusSuccess, "", constants.OutcomeCreated))

	entry, err = repo.GetByEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, constants.LogStatusSuccess, entry.Status)
	assert.Equal(t, constants.OutcomeCreated, entry.Outcome)
	require.NotNil(t, entry.ProcessedAt)
}

func TestWebhookLogRepoBeginRedeliveryResetsRow(t *testing.T) {
	repo := NewWebhookLogRepo(newTestData(t), testLogger())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Begin(ctx, sampleLog("evt_1", now)))
	require.NoError(t, repo.Finalize(ctx, "evt_1", constants.LogStatusError, "boom", ""))

	// Redelivery of the same event id does not violate uniqueness; the row
	// returns to processing for the new attempt.
	require.NoError(t, repo.Begin(ctx, sampleLog("evt_1", now.Add(time.Minute))))

	entry, err := repo.GetByEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, constants.LogStatusProcessing, entry.Status)

	_, total, err := repo.ListLogs(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestWebhookLogRepoFinalizeUnknownEvent(t *testing.T) {
	repo := NewWebhookLogRepo(newTestData(t), testLogger())
	err := repo.Finalize(context.Background(), "evt_none", constants.LogStatusSuccess, "", "")
	require.Error(t, err)
}

func TestWebhookLogRepoListFiltersByStatus(t *testing.T) {
	repo := NewWebhookLogRepo(newTestData(t), testLogger())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Begin(ctx, sampleLog("evt_1", now.Add(-2*time.Minute))))
	require.NoError(t, repo.Begin(ctx, sampleLog("evt_2", now.Add(-time.Minute))))
	require.NoError(t, repo.Finalize(ctx, "evt_1", constants.LogStatusSuccess, "", constants.OutcomeCreated))

	items, total, err := repo.ListLogs(ctx, constants.LogStatusSuccess, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "evt_1", items[0].EventID)

	items, total, err = repo.ListLogs(ctx, "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "evt_2", items[0].EventID) // newest first
}

func TestWebhookLogRepoMarkStaleProcessing(t *testing.T) {
	repo := NewWebhookLogRepo(newTestData(t), testLogger())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Begin(ctx, sampleLog("evt_old", now.Add(-time.Hour))))
	require.NoError(t, repo.Begin(ctx, sampleLog("evt_new", now)))

	count, err := repo.MarkStaleProcessing(ctx, now.Add(-constants.StaleProcessingAfter))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entry, err := repo.GetByEventID(ctx, "evt_old")
	require.NoError(t, err)
	assert.Equal(t, constants.LogStatusError, entry.Status)
	assert.Equal(t, "processing timed out", entry.ErrorMessage)

	entry, err = repo.GetByEventID(ctx, "evt_new")
	require.NoError(t, err)
	assert.Equal(t, constants.LogStatusProcessing, entry.Status)
}

func TestWebhookLogRepoCountByStatusSince(t *testing.T) {
	repo := NewWebhookLogRepo(newTestData(t), testLogger())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Begin(ctx, sampleLog("evt_1", now.Add(-48*time.Hour))))
	require.NoError(t, repo.Begin(ctx, sampleLog("evt_2", now)))
	require.NoError(t, repo.Begin(ctx, sampleLog("evt_3", now)))
	require.NoError(t, repo.Finalize(ctx, "evt_2", constants.LogStatusSuccess, "", constants.OutcomeUpdated))

	counts, err := repo.CountByStatusSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, counts[constants.LogStatusSuccess])
	assert.Equal(t, 1, counts[constants.LogStatusProcessing])
}
