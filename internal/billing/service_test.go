package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lamontai/lamontai/internal/billing"
	"github.com/lamontai/lamontai/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Subscription{}, &models.UsageRecord{}))
	return db
}

func newService(t *testing.T, db *gorm.DB) *billing.Service {
	svc, err := billing.NewService(zap.NewNop(), db)
	require.NoError(t, err)
	return svc
}

func TestEnsureSubscriptionTrial(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	sub, err := svc.EnsureSubscription(ctx, userID, models.PlanTrial)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
	assert.True(t, sub.PriceMonthly.IsZero())

	// Idempotent
	again, err := svc.EnsureSubscription(ctx, userID, models.PlanTrial)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
}

func TestQuotaConsumption(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.EnsureSubscription(ctx, userID, models.PlanTrial)
	require.NoError(t, err)

	limit := models.GetPlanLimits(models.PlanTrial).ArticlesPerMonth
	remaining, err := svc.RemainingCredits(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, limit, remaining)

	for i := 0; i < limit; i++ {
		require.NoError(t, svc.ConsumeCredit(ctx, userID, uuid.New(), 100))
	}

	remaining, err = svc.RemainingCredits(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	err = svc.ConsumeCredit(ctx, userID, uuid.New(), 100)
	assert.ErrorIs(t, err, billing.ErrQuotaExceeded)
}

func TestChangePlanResetsPeriodAndPrice(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, db.Create(&models.User{
		ID: userID, Email: "u@example.com", PasswordHash: "x", Name: "U",
		Plan: string(models.PlanTrial), Role: "user",
	}).Error)

	_, err := svc.EnsureSubscription(ctx, userID, models.PlanTrial)
	require.NoError(t, err)

	sub, err := svc.ChangePlan(ctx, userID, models.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, string(models.PlanPro), sub.Plan)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, models.GetPlanLimits(models.PlanPro).PriceMonthly.String(), sub.PriceMonthly.String())

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	assert.Equal(t, string(models.PlanPro), user.Plan)

	remaining, err := svc.RemainingCredits(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.GetPlanLimits(models.PlanPro).ArticlesPerMonth, remaining)
}

func TestCanceledSubscriptionHasNoCredits(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.EnsureSubscription(ctx, userID, models.PlanStarter)
	require.NoError(t, err)

	sub, err := svc.Cancel(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	_, err = svc.RemainingCredits(ctx, userID)
	assert.ErrorIs(t, err, billing.ErrInactive)
}

func TestPeriodRollRestoresQuota(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.EnsureSubscription(ctx, userID, models.PlanTrial)
	require.NoError(t, err)
	require.NoError(t, svc.ConsumeCredit(ctx, userID, uuid.New(), 10))

	// Force the period into the past
	past := time.Now().AddDate(0, -2, 0)
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"current_period_start": past,
			"current_period_end":   past.AddDate(0, 1, 0),
		}).Error)

	sub, err := svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.True(t, sub.CurrentPeriodEnd.After(time.Now()))

	remaining, err := svc.RemainingCredits(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.GetPlanLimits(models.PlanTrial).ArticlesPerMonth, remaining)
}
