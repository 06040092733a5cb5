package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents an account holder
type User struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Email        string    `json:"email" gorm:"uniqueIndex" validate:"required,email,max=254"`
	PasswordHash string    `json:"-" gorm:"column:password_hash" validate:"required,min=60"`
	Name         string    `json:"name" validate:"required,min=1,max=100"`
	Plan         string    `json:"plan" gorm:"default:trial" validate:"required,oneof=trial starter pro"`
	Role         string    `json:"role" gorm:"default:user" validate:"required,oneof=user admin"`
	MFAEnabled   bool      `json:"mfa_enabled"`
	TOTPSecret   string    `json:"-" gorm:"column:totp_secret"`
	LastLogin    time.Time `json:"last_login"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Settings holds per-user article generation preferences
type Settings struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	Language   string    `json:"language" gorm:"default:en" validate:"required,min=2,max=10"`
	Tone       string    `json:"tone" gorm:"default:professional" validate:"required,oneof=professional casual persuasive informative"`
	WordCount  int       `json:"word_count" gorm:"default:1200" validate:"min=300,max=5000"`
	AutoDetail bool      `json:"auto_detail"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BusinessProfile captures the onboarding flow state for a user.
// A step is complete when its *At timestamp is set.
type BusinessProfile struct {
	ID              uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID          uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	Description     string     `json:"description" gorm:"type:text" validate:"omitempty,max=4000"`
	TargetAudience  string     `json:"target_audience" gorm:"type:text" validate:"omitempty,max=2000"`
	SitemapURL      string     `json:"sitemap_url" validate:"omitempty,url,max=500"`
	SitemapLinks    string     `json:"sitemap_links" gorm:"type:text"` // JSON array of discovered URLs
	DescriptionAt   *time.Time `json:"description_at"`
	CompetitorsAt   *time.Time `json:"competitors_at"`
	SitemapAt       *time.Time `json:"sitemap_at"`
	AudienceAt      *time.Time `json:"audience_at"`
	OnboardingDone  bool       `json:"onboarding_done"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Competitor is a tracked competitor site from onboarding
type Competitor struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Name      string    `json:"name" validate:"required,min=1,max=120"`
	Domain    string    `json:"domain" validate:"required,fqdn,max=253"`
	Notes     string    `json:"notes" gorm:"type:text" validate:"omitempty,max=2000"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Article statuses
const (
	ArticleStatusQueued     = "queued"
	ArticleStatusGenerating = "generating"
	ArticleStatusCompleted  = "completed"
	ArticleStatusFailed     = "failed"
)

// Article is a generated (or in-flight) SEO article
type Article struct {
	ID               uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID           uuid.UUID  `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Title            string     `json:"title" validate:"required,min=1,max=300"`
	Slug             string     `json:"slug" gorm:"index" validate:"required,max=320"`
	Keyword          string     `json:"keyword" validate:"required,min=1,max=120"`
	Status           string     `json:"status" validate:"required,oneof=queued generating completed failed"`
	Content          string     `json:"content" gorm:"type:text"` // sanitized HTML
	MetaDescription  string     `json:"meta_description" validate:"omitempty,max=320"`
	WordCount        int        `json:"word_count" validate:"min=0"`
	Model            string     `json:"model" validate:"omitempty,max=100"`
	PromptTokens     int        `json:"prompt_tokens" validate:"min=0"`
	CompletionTokens int        `json:"completion_tokens" validate:"min=0"`
	FailReason       string     `json:"fail_reason,omitempty" validate:"omitempty,max=1000"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at"`
}

// ContentPlanItem is one planned article in a user's content plan
type ContentPlanItem struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID       uuid.UUID  `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Keyword      string     `json:"keyword" validate:"required,min=1,max=120"`
	Title        string     `json:"title" validate:"required,min=1,max=300"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       string     `json:"status" gorm:"default:planned" validate:"required,oneof=planned generated skipped"`
	ArticleID    *uuid.UUID `json:"article_id,omitempty" gorm:"type:uuid" validate:"omitempty,uuid"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Subscription statuses
const (
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Subscription tracks a user's billing state for the current period
type Subscription struct {
	ID                 uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID             uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	Plan               string          `json:"plan" validate:"required,oneof=trial starter pro"`
	Status             string          `json:"status" validate:"required,oneof=trialing active past_due canceled"`
	PriceMonthly       decimal.Decimal `json:"price_monthly" gorm:"type:decimal(10,2)"`
	CurrentPeriodStart time.Time       `json:"current_period_start"`
	CurrentPeriodEnd   time.Time       `json:"current_period_end"`
	CanceledAt         *time.Time      `json:"canceled_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// UsageRecord is one ledger entry per generated article
type UsageRecord struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	ArticleID uuid.UUID `json:"article_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Tokens    int       `json:"tokens" validate:"min=0"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8" validate:"required,min=8,max=128"`
	Name     string `json:"name" binding:"required" validate:"required,min=1,max=100"`
}

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email,max=254"`
	Password string `json:"password" binding:"required" validate:"required,min=8,max=128"`
}

// LoginResponse represents a user login response
type LoginResponse struct {
	User         *User     `json:"user,omitempty"`
	Token        string    `json:"token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Requires2FA  bool      `json:"requires_2fa"`
	UserID       uuid.UUID `json:"user_id,omitempty"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required" validate:"required"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	Current string `json:"current_password" binding:"required" validate:"required,min=8,max=128"`
	New     string `json:"new_password" binding:"required,min=8" validate:"required,min=8,max=128"`
}

// SettingsRequest updates generation preferences; zero-valued fields keep
// their current value.
type SettingsRequest struct {
	Language   string `json:"language" validate:"omitempty,min=2,max=10"`
	Tone       string `json:"tone" validate:"omitempty,oneof=professional casual persuasive informative"`
	WordCount  int    `json:"word_count" validate:"omitempty,min=300,max=5000"`
	AutoDetail *bool  `json:"auto_detail"`
}

// TwoFAVerifyRequest represents a 2FA verification request
type TwoFAVerifyRequest struct {
	Code string `json:"code" binding:"required" validate:"required,len=6,numeric"`
}

// GenerateRequest asks for one article to be generated
type GenerateRequest struct {
	Keyword string `json:"keyword" binding:"required" validate:"required,min=1,max=120"`
	Title   string `json:"title" validate:"omitempty,max=300"`
}

// CompetitorRequest creates or updates a competitor
type CompetitorRequest struct {
	Name   string `json:"name" binding:"required" validate:"required,min=1,max=120"`
	Domain string `json:"domain" binding:"required" validate:"required,fqdn,max=253"`
	Notes  string `json:"notes" validate:"omitempty,max=2000"`
}

// ContentPlanRequest creates a batch of planned articles
type ContentPlanRequest struct {
	Keywords []string  `json:"keywords" binding:"required,min=1" validate:"required,min=1,max=50,dive,min=1,max=120"`
	StartAt  time.Time `json:"start_at"`
}

// ArticleFilter represents filters for listing articles.
// Used in API query params for /articles endpoints.
type ArticleFilter struct {
	Status  string `form:"status" json:"status" validate:"omitempty,oneof=queued generating completed failed"`
	Keyword string `form:"keyword" json:"keyword" validate:"omitempty,max=120"`
}

// Plan represents billing/rate-limiting plans
type Plan string

const (
	PlanTrial   Plan = "trial"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// PlanLimits defines quotas and rate limits for each plan
type PlanLimits struct {
	ArticlesPerMonth   int             `json:"articles_per_month"`
	APICallsPerMinute  int             `json:"api_calls_per_minute"`
	GenerationsPerHour int             `json:"generations_per_hour"`
	MaxWordCount       int             `json:"max_word_count"`
	PriceMonthly       decimal.Decimal `json:"price_monthly"`
}

// GetPlanLimits returns quotas for a specific plan
func GetPlanLimits(plan Plan) PlanLimits {
	switch plan {
	case PlanTrial:
		return PlanLimits{
			ArticlesPerMonth:   3,
			APICallsPerMinute:  30,
			GenerationsPerHour: 2,
			MaxWordCount:       1500,
			PriceMonthly:       decimal.Zero,
		}
	case PlanStarter:
		return PlanLimits{
			ArticlesPerMonth:   30,
			APICallsPerMinute:  120,
			GenerationsPerHour: 10,
			MaxWordCount:       3000,
			PriceMonthly:       decimal.NewFromInt(29),
		}
	case PlanPro:
		return PlanLimits{
			ArticlesPerMonth:   120,
			APICallsPerMinute:  600,
			GenerationsPerHour: 30,
			MaxWordCount:       5000,
			PriceMonthly:       decimal.NewFromInt(79),
		}
	default:
		return GetPlanLimits(PlanTrial)
	}
}

// RateLimitInfo contains detailed rate limit information
type RateLimitInfo struct {
	Limit     int           `json:"limit"`
	Used      int           `json:"used"`
	Remaining int           `json:"remaining"`
	ResetAt   time.Time     `json:"reset_at"`
	Window    time.Duration `json:"window"`
}
