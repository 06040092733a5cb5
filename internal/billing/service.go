package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lamontai/lamontai/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNoSubscription = errors.New("no subscription")
	ErrQuotaExceeded  = errors.New("monthly article quota exceeded")
	ErrInactive       = errors.New("subscription is not active")
)

// BillingService manages subscriptions and article usage quotas
type BillingService interface {
	Start() error
	Stop() error
	EnsureSubscription(ctx context.Context, userID uuid.UUID, plan models.Plan) (*models.Subscription, error)
	GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	ChangePlan(ctx context.Context, userID uuid.UUID, plan models.Plan) (*models.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	RemainingCredits(ctx context.Context, userID uuid.UUID) (int, error)
	ConsumeCredit(ctx context.Context, userID, articleID uuid.UUID, tokens int) error
	ListUsage(ctx context.Context, userID uuid.UUID) ([]models.UsageRecord, error)
}

// Service implements BillingService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new BillingService
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{
		logger: logger.Named("billing"),
		db:     db,
	}, nil
}

// Start starts the billing service
func (s *Service) Start() error {
	s.logger.Info("Billing service started")
	return nil
}

// Stop stops the billing service
func (s *Service) Stop() error {
	s.logger.Info("Billing service stopped")
	return nil
}

// EnsureSubscription returns the user's subscription, creating one on the
// given plan when none exists yet.
func (s *Service) EnsureSubscription(ctx context.Context, userID uuid.UUID, plan models.Plan) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if err == nil {
		return s.rollPeriod(ctx, &sub)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	now := time.Now()
	status := models.SubscriptionActive
	if plan == models.PlanTrial {
		status = models.SubscriptionTrialing
	}
	sub = models.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		Plan:               string(plan),
		Status:             status,
		PriceMonthly:       models.GetPlanLimits(plan).PriceMonthly,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	s.logger.Info("Subscription created",
		zap.String("userID", userID.String()), zap.String("plan", string(plan)))
	return &sub, nil
}

// GetSubscription loads the user's subscription, rolling the billing period
// forward when it has lapsed.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return s.rollPeriod(ctx, &sub)
}

// ChangePlan switches the subscription to a new plan immediately
func (s *Service) ChangePlan(ctx context.Context, userID uuid.UUID, plan models.Plan) (*models.Subscription, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub.Plan = string(plan)
	sub.PriceMonthly = models.GetPlanLimits(plan).PriceMonthly
	sub.Status = models.SubscriptionActive
	if plan == models.PlanTrial {
		sub.Status = models.SubscriptionTrialing
	}
	sub.CanceledAt = nil
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = now.AddDate(0, 1, 0)
	sub.UpdatedAt = now

	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("plan", string(plan)).Error; err != nil {
		return nil, fmt.Errorf("failed to update user plan: %w", err)
	}
	s.logger.Info("Plan changed",
		zap.String("userID", userID.String()), zap.String("plan", string(plan)))
	return sub, nil
}

// Cancel marks the subscription canceled at the end of the current period
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sub.Status = models.SubscriptionCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	return sub, nil
}

// RemainingCredits returns how many articles the user may still generate in
// the current billing period.
func (s *Service) RemainingCredits(ctx context.Context, userID uuid.UUID) (int, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return 0, err
	}
	if sub.Status == models.SubscriptionCanceled || sub.Status == models.SubscriptionPastDue {
		return 0, ErrInactive
	}

	limit := models.GetPlanLimits(models.Plan(sub.Plan)).ArticlesPerMonth

	var used int64
	if err := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, sub.CurrentPeriodStart).
		Count(&used).Error; err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}

	remaining := limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ConsumeCredit records one generated article against the user's quota.
// Callers must have checked RemainingCredits first; this re-checks to close
// the obvious race and returns ErrQuotaExceeded when nothing is left.
func (s *Service) ConsumeCredit(ctx context.Context, userID, articleID uuid.UUID, tokens int) error {
	remaining, err := s.RemainingCredits(ctx, userID)
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return ErrQuotaExceeded
	}

	rec := &models.UsageRecord{
		ID:        uuid.New(),
		UserID:    userID,
		ArticleID: articleID,
		Tokens:    tokens,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// ListUsage returns the usage records of the current billing period,
// newest first.
func (s *Service) ListUsage(ctx context.Context, userID uuid.UUID) ([]models.UsageRecord, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	var records []models.UsageRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, sub.CurrentPeriodStart).
		Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return records, nil
}

// rollPeriod advances a lapsed billing period to the one containing now
func (s *Service) rollPeriod(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if sub.Status == models.SubscriptionCanceled {
		return sub, nil
	}
	now := time.Now()
	if !now.After(sub.CurrentPeriodEnd) {
		return sub, nil
	}
	for now.After(sub.CurrentPeriodEnd) {
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.AddDate(0, 1, 0)
	}
	sub.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to roll billing period: %w", err)
	}
	return sub, nil
}
