package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lamontai/lamontai/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrCompetitorNotFound = errors.New("competitor not found")

// StepStatus reports onboarding progress for the dashboard
type StepStatus struct {
	Description bool `json:"description"`
	Competitors bool `json:"competitors"`
	Sitemap     bool `json:"sitemap"`
	Audience    bool `json:"audience"`
	Done        bool `json:"done"`
}

// OnboardingService runs the business-profile setup flow
type OnboardingService interface {
	Start() error
	Stop() error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error)
	SaveDescription(ctx context.Context, userID uuid.UUID, description string) (*models.BusinessProfile, error)
	SaveAudience(ctx context.Context, userID uuid.UUID, audience string) (*models.BusinessProfile, error)
	SetSitemap(ctx context.Context, userID uuid.UUID, url string) (*models.BusinessProfile, []string, error)
	Status(ctx context.Context, userID uuid.UUID) (*StepStatus, error)
	ListCompetitors(ctx context.Context, userID uuid.UUID) ([]models.Competitor, error)
	AddCompetitor(ctx context.Context, userID uuid.UUID, req *models.CompetitorRequest) (*models.Competitor, error)
	UpdateCompetitor(ctx context.Context, userID, competitorID uuid.UUID, req *models.CompetitorRequest) (*models.Competitor, error)
	DeleteCompetitor(ctx context.Context, userID, competitorID uuid.UUID) error
}

// Service implements OnboardingService
type Service struct {
	logger     *zap.Logger
	db         *gorm.DB
	httpClient *http.Client
	maxURLs    int
}

// NewService creates a new OnboardingService. httpClient may be nil.
func NewService(logger *zap.Logger, db *gorm.DB, httpClient *http.Client) (*Service, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		logger:     logger.Named("onboarding"),
		db:         db,
		httpClient: httpClient,
		maxURLs:    500,
	}, nil
}

// Start starts the onboarding service
func (s *Service) Start() error {
	s.logger.Info("Onboarding service started")
	return nil
}

// Stop stops the onboarding service
func (s *Service) Stop() error {
	s.logger.Info("Onboarding service stopped")
	return nil
}

// GetProfile returns the user's business profile, creating an empty one on
// first access.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error) {
	var profile models.BusinessProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	now := time.Now()
	profile = models.BusinessProfile{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &profile, nil
}

// SaveDescription stores the business description and completes that step
func (s *Service) SaveDescription(ctx context.Context, userID uuid.UUID, description string) (*models.BusinessProfile, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	profile.Description = description
	profile.DescriptionAt = &now
	return s.saveProfile(ctx, profile)
}

// SaveAudience stores the target audience and completes that step
func (s *Service) SaveAudience(ctx context.Context, userID uuid.UUID, audience string) (*models.BusinessProfile, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	profile.TargetAudience = audience
	profile.AudienceAt = &now
	return s.saveProfile(ctx, profile)
}

// SetSitemap fetches and parses the sitemap, storing discovered URLs
func (s *Service) SetSitemap(ctx context.Context, userID uuid.UUID, url string) (*models.BusinessProfile, []string, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	urls, err := FetchSitemap(ctx, s.httpClient, url, s.maxURLs)
	if err != nil {
		return nil, nil, err
	}

	linksJSON, err := json.Marshal(urls)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize sitemap links: %w", err)
	}

	now := time.Now()
	profile.SitemapURL = url
	profile.SitemapLinks = string(linksJSON)
	profile.SitemapAt = &now
	saved, err := s.saveProfile(ctx, profile)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("Sitemap imported",
		zap.String("userID", userID.String()), zap.Int("urls", len(urls)))
	return saved, urls, nil
}

// Status reports which steps are complete
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*StepStatus, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &StepStatus{
		Description: profile.DescriptionAt != nil,
		Competitors: profile.CompetitorsAt != nil,
		Sitemap:     profile.SitemapAt != nil,
		Audience:    profile.AudienceAt != nil,
		Done:        profile.OnboardingDone,
	}, nil
}

// ListCompetitors lists the user's competitors
func (s *Service) ListCompetitors(ctx context.Context, userID uuid.UUID) ([]models.Competitor, error) {
	var competitors []models.Competitor
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&competitors).Error; err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}
	return competitors, nil
}

// AddCompetitor creates a competitor and completes the competitors step
func (s *Service) AddCompetitor(ctx context.Context, userID uuid.UUID, req *models.CompetitorRequest) (*models.Competitor, error) {
	now := time.Now()
	competitor := &models.Competitor{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      req.Name,
		Domain:    req.Domain,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(competitor).Error; err != nil {
		return nil, fmt.Errorf("failed to create competitor: %w", err)
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.CompetitorsAt == nil {
		profile.CompetitorsAt = &now
		if _, err := s.saveProfile(ctx, profile); err != nil {
			return nil, err
		}
	}
	return competitor, nil
}

// UpdateCompetitor updates one of the user's competitors
func (s *Service) UpdateCompetitor(ctx context.Context, userID, competitorID uuid.UUID, req *models.CompetitorRequest) (*models.Competitor, error) {
	var competitor models.Competitor
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", competitorID, userID).First(&competitor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompetitorNotFound
		}
		return nil, fmt.Errorf("failed to load competitor: %w", err)
	}
	competitor.Name = req.Name
	competitor.Domain = req.Domain
	competitor.Notes = req.Notes
	competitor.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&competitor).Error; err != nil {
		return nil, fmt.Errorf("failed to save competitor: %w", err)
	}
	return &competitor, nil
}

// DeleteCompetitor removes one of the user's competitors
func (s *Service) DeleteCompetitor(ctx context.Context, userID, competitorID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", competitorID, userID).Delete(&models.Competitor{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete competitor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCompetitorNotFound
	}
	return nil
}

// saveProfile persists the profile, flipping OnboardingDone once every step
// timestamp is present.
func (s *Service) saveProfile(ctx context.Context, profile *models.BusinessProfile) (*models.BusinessProfile, error) {
	profile.OnboardingDone = profile.DescriptionAt != nil &&
		profile.CompetitorsAt != nil &&
		profile.SitemapAt != nil &&
		profile.AudienceAt != nil
	profile.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, nil
}
