package articles

import (
	"context"
	"time"

	"github.com/lamontai/lamontai/internal/generation"
	"github.com/lamontai/lamontai/internal/messaging"
	"github.com/lamontai/lamontai/pkg/metrics"
	"github.com/lamontai/lamontai/pkg/models"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// contentPolicy keeps the markup the editor can render and strips the rest
var contentPolicy = bluemonday.UGCPolicy()

// generateTimeout bounds one end-to-end generation job
const generateTimeout = 10 * time.Minute

func (s *Service) worker(id int) {
	log := s.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.jobs:
			s.process(log, j)
		}
	}
}

func (s *Service) process(log *zap.Logger, j job) {
	ctx, cancel := context.WithTimeout(s.ctx, generateTimeout)
	defer cancel()

	start := time.Now()

	var article models.Article
	if err := s.db.WithContext(ctx).Where("id = ?", j.articleID).First(&article).Error; err != nil {
		log.Error("Queued article disappeared", zap.String("articleID", j.articleID.String()), zap.Error(err))
		return
	}

	article.Status = models.ArticleStatusGenerating
	article.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&article).Error; err != nil {
		log.Error("Failed to mark article generating", zap.Error(err))
		return
	}
	s.notify(j.userID, article.ID, models.ArticleStatusGenerating, "")

	result, err := s.generate(ctx, &article)
	if err != nil {
		s.fail(log, &article, err)
		metrics.ArticlesGenerated.WithLabelValues("failed").Inc()
		return
	}

	sanitized := contentPolicy.Sanitize(result.Content)
	now := time.Now()
	article.Content = sanitized
	article.WordCount = WordCount(sanitized)
	article.MetaDescription = MetaDescription(sanitized, 160)
	article.Model = result.Model
	article.PromptTokens = result.PromptTokens
	article.CompletionTokens = result.CompletionTokens
	article.Status = models.ArticleStatusCompleted
	article.CompletedAt = &now
	article.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(&article).Error; err != nil {
		log.Error("Failed to store generated article", zap.Error(err))
		return
	}

	tokens := result.PromptTokens + result.CompletionTokens
	if err := s.billing.ConsumeCredit(ctx, j.userID, article.ID, tokens); err != nil {
		// The article is already generated; log and move on rather than
		// failing the job over the ledger write.
		log.Warn("Failed to consume credit", zap.Error(err))
	}

	s.linkPlanItem(ctx, &article)

	metrics.ArticlesGenerated.WithLabelValues("completed").Inc()
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())

	if err := s.publisher.PublishArticleEvent(ctx, messaging.ArticleEvent{
		Type:      messaging.EventArticleCompleted,
		UserID:    j.userID,
		ArticleID: article.ID,
		Keyword:   article.Keyword,
		Tokens:    tokens,
	}); err != nil {
		log.Warn("Failed to publish completed event", zap.Error(err))
	}
	s.notify(j.userID, article.ID, models.ArticleStatusCompleted, "")

	log.Info("Article generated",
		zap.String("articleID", article.ID.String()),
		zap.Int("words", article.WordCount),
		zap.Duration("took", time.Since(start)))
}

// generate assembles the prompt from the user's profile and calls the
// completion API.
func (s *Service) generate(ctx context.Context, article *models.Article) (*generation.Result, error) {
	var profile models.BusinessProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", article.UserID).First(&profile).Error; err != nil {
		// Generation still works without onboarding data, just less targeted
		profile = models.BusinessProfile{}
	}
	var settings models.Settings
	if err := s.db.WithContext(ctx).Where("user_id = ?", article.UserID).First(&settings).Error; err != nil {
		settings = models.Settings{Language: "en", Tone: "professional", WordCount: 1200}
	}
	var competitors []models.Competitor
	s.db.WithContext(ctx).Where("user_id = ?", article.UserID).Limit(10).Find(&competitors)

	system, user := generation.BuildArticlePrompt(&profile, &settings, competitors, article.Keyword, article.Title)
	return s.completer.Complete(ctx, system, user)
}

// fail records the terminal status on its own context: the job context is
// already dead when generation is aborted by cancellation or timeout, and the
// status write must still land.
func (s *Service) fail(log *zap.Logger, article *models.Article, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()

	article.Status = models.ArticleStatusFailed
	article.FailReason = cause.Error()
	article.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(article).Error; err != nil {
		log.Error("Failed to mark article failed", zap.Error(err))
	}
	if err := s.publisher.PublishArticleEvent(ctx, messaging.ArticleEvent{
		Type:      messaging.EventArticleFailed,
		UserID:    article.UserID,
		ArticleID: article.ID,
		Keyword:   article.Keyword,
	}); err != nil {
		log.Warn("Failed to publish failed event", zap.Error(err))
	}
	s.notify(article.UserID, article.ID, models.ArticleStatusFailed, cause.Error())
	log.Warn("Article generation failed",
		zap.String("articleID", article.ID.String()), zap.Error(cause))
}

// linkPlanItem marks a matching planned item generated
func (s *Service) linkPlanItem(ctx context.Context, article *models.Article) {
	s.db.WithContext(ctx).Model(&models.ContentPlanItem{}).
		Where("user_id = ? AND keyword = ? AND status = ?", article.UserID, article.Keyword, "planned").
		Updates(map[string]interface{}{
			"status":     "generated",
			"article_id": article.ID,
			"updated_at": time.Now(),
		})
}
