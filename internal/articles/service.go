package articles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lamontai/lamontai/internal/billing"
	"github.com/lamontai/lamontai/internal/generation"
	"github.com/lamontai/lamontai/internal/messaging"
	"github.com/lamontai/lamontai/internal/progress"
	"github.com/lamontai/lamontai/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrQueueFull       = errors.New("generation queue is full")
	ErrNoKeywords      = errors.New("no usable keywords")
)

// keywordDedupeDistance treats keywords within this edit distance as the same
const keywordDedupeDistance = 2

// Notifier receives progress events; satisfied by *progress.Hub
type Notifier interface {
	Publish(userID uuid.UUID, ev progress.Event)
}

// ArticleService manages articles, the content plan and the generation queue
type ArticleService interface {
	Start() error
	Stop() error
	RequestGeneration(ctx context.Context, userID uuid.UUID, req *models.GenerateRequest) (*models.Article, error)
	GetArticle(ctx context.Context, userID, articleID uuid.UUID) (*models.Article, error)
	ListArticles(ctx context.Context, userID uuid.UUID, filter *models.ArticleFilter) ([]models.Article, error)
	DeleteArticle(ctx context.Context, userID, articleID uuid.UUID) error
	CreatePlan(ctx context.Context, userID uuid.UUID, req *models.ContentPlanRequest) ([]models.ContentPlanItem, error)
	ListPlan(ctx context.Context, userID uuid.UUID) ([]models.ContentPlanItem, error)
}

// Config tunes the generation worker pool
type Config struct {
	Workers   int
	QueueSize int
}

type job struct {
	articleID uuid.UUID
	userID    uuid.UUID
}

// Service implements ArticleService
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	completer generation.Completer
	billing   billing.BillingService
	publisher messaging.Publisher
	notifier  Notifier

	cfg    Config
	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new ArticleService. notifier and publisher may be nil.
func NewService(logger *zap.Logger, db *gorm.DB, completer generation.Completer, billingSvc billing.BillingService, publisher messaging.Publisher, notifier Notifier, cfg Config) (*Service, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		logger:    logger.Named("articles"),
		db:        db,
		completer: completer,
		billing:   billingSvc,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		jobs:      make(chan job, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// Start launches the generation worker pool and re-queues articles a previous
// run left unfinished.
func (s *Service) Start() error {
	s.recoverInterrupted()

	workerDone := make(chan struct{}, s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go func(id int) {
			defer func() { workerDone <- struct{}{} }()
			s.worker(id)
		}(i)
	}
	go func() {
		for i := 0; i < s.cfg.Workers; i++ {
			<-workerDone
		}
		close(s.done)
	}()
	s.logger.Info("Article service started", zap.Int("workers", s.cfg.Workers))
	return nil
}

// Stop aborts in-flight jobs and waits for the workers to exit. Aborted
// generations are marked failed; anything still queued is picked up again on
// the next Start.
func (s *Service) Stop() error {
	s.cancel()
	<-s.done
	s.logger.Info("Article service stopped")
	return nil
}

// recoverInterrupted re-enqueues articles stranded in a non-terminal status by
// an earlier shutdown or crash. Rows that no longer fit the queue are marked
// failed rather than left stuck.
func (s *Service) recoverInterrupted() {
	var stranded []models.Article
	err := s.db.Where("status IN ?", []string{models.ArticleStatusQueued, models.ArticleStatusGenerating}).
		Order("created_at").Find(&stranded).Error
	if err != nil {
		s.logger.Error("Failed to load interrupted articles", zap.Error(err))
		return
	}
	if len(stranded) == 0 {
		return
	}
	requeued := 0
	for i := range stranded {
		article := &stranded[i]
		if article.Status == models.ArticleStatusGenerating {
			article.Status = models.ArticleStatusQueued
			article.UpdatedAt = time.Now()
			if err := s.db.Save(article).Error; err != nil {
				s.logger.Error("Failed to requeue interrupted article",
					zap.String("articleID", article.ID.String()), zap.Error(err))
				continue
			}
		}
		select {
		case s.jobs <- job{articleID: article.ID, userID: article.UserID}:
			requeued++
		default:
			s.fail(s.logger, article, errors.New("generation interrupted by restart"))
		}
	}
	s.logger.Info("Re-queued interrupted articles",
		zap.Int("requeued", requeued), zap.Int("stranded", len(stranded)))
}

// RequestGeneration validates quota, records a queued article and hands it to
// the worker pool.
func (s *Service) RequestGeneration(ctx context.Context, userID uuid.UUID, req *models.GenerateRequest) (*models.Article, error) {
	remaining, err := s.billing.RemainingCredits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		return nil, billing.ErrQuotaExceeded
	}

	title := req.Title
	if title == "" {
		title = TitleFromKeyword(req.Keyword)
	}

	now := time.Now()
	article := &models.Article{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Slug:      Slugify(title),
		Keyword:   req.Keyword,
		Status:    models.ArticleStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
		return nil, fmt.Errorf("failed to create article: %w", err)
	}

	select {
	case s.jobs <- job{articleID: article.ID, userID: userID}:
	default:
		s.db.WithContext(ctx).Delete(article)
		return nil, ErrQueueFull
	}

	if err := s.publisher.PublishArticleEvent(ctx, messaging.ArticleEvent{
		Type:      messaging.EventArticleQueued,
		UserID:    userID,
		ArticleID: article.ID,
		Keyword:   article.Keyword,
	}); err != nil {
		s.logger.Warn("Failed to publish queued event", zap.Error(err))
	}
	s.notify(userID, article.ID, models.ArticleStatusQueued, "")

	return article, nil
}

// GetArticle loads one of the user's articles
func (s *Service) GetArticle(ctx context.Context, userID, articleID uuid.UUID) (*models.Article, error) {
	var article models.Article
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", articleID, userID).First(&article).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to load article: %w", err)
	}
	return &article, nil
}

// ListArticles lists the user's articles, newest first
func (s *Service) ListArticles(ctx context.Context, userID uuid.UUID, filter *models.ArticleFilter) ([]models.Article, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter != nil {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Keyword != "" {
			q = q.Where("keyword = ?", filter.Keyword)
		}
	}
	var articles []models.Article
	if err := q.Order("created_at DESC").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// DeleteArticle removes one of the user's articles
func (s *Service) DeleteArticle(ctx context.Context, userID, articleID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", articleID, userID).Delete(&models.Article{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete article: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrArticleNotFound
	}
	return nil
}

// CreatePlan turns a keyword list into scheduled content plan items, one per
// day, after dropping near-duplicate keywords.
func (s *Service) CreatePlan(ctx context.Context, userID uuid.UUID, req *models.ContentPlanRequest) ([]models.ContentPlanItem, error) {
	keywords := DedupeKeywords(req.Keywords, keywordDedupeDistance)
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}

	start := req.StartAt
	if start.IsZero() {
		start = time.Now().AddDate(0, 0, 1)
	}

	now := time.Now()
	items := make([]models.ContentPlanItem, 0, len(keywords))
	for i, kw := range keywords {
		items = append(items, models.ContentPlanItem{
			ID:           uuid.New(),
			UserID:       userID,
			Keyword:      kw,
			Title:        TitleFromKeyword(kw),
			ScheduledFor: start.AddDate(0, 0, i),
			Status:       "planned",
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if err := s.db.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to create content plan: %w", err)
	}
	return items, nil
}

// ListPlan lists the user's content plan in schedule order
func (s *Service) ListPlan(ctx context.Context, userID uuid.UUID) ([]models.ContentPlanItem, error) {
	var items []models.ContentPlanItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("scheduled_for").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list content plan: %w", err)
	}
	return items, nil
}

func (s *Service) notify(userID, articleID uuid.UUID, status, detail string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(userID, progress.Event{
		ArticleID: articleID,
		Status:    status,
		Detail:    detail,
	})
}
