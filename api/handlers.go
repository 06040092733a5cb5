package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lamontai/lamontai/pkg/models"
)

const articleCacheTTL = 10 * time.Minute

// --- AUTH ---

func (s *Server) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.deps.Identity.Register(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if _, err := s.deps.Billing.EnsureSubscription(c.Request.Context(), user.ID, models.PlanTrial); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.deps.Identity.Login(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.deps.Identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// loginVerify2FA completes a login that Login answered with requires_2fa
func (s *Server) loginVerify2FA(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Code   string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.deps.Identity.Verify2FA(c.Request.Context(), req.UserID, req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// --- USER ---

func (s *Server) getProfile(c *gin.Context) {
	user, err := s.deps.Identity.GetUser(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.deps.Identity.UpdateProfile(c.Request.Context(), c.GetString("userID"), req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) changePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Identity.ChangePassword(c.Request.Context(), c.GetString("userID"), &req); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.deps.Identity.GetSettings(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) updateSettings(c *gin.Context) {
	var req models.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := s.deps.Identity.UpdateSettings(c.Request.Context(), c.GetString("userID"), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// --- 2FA ---

func (s *Server) enable2FA(c *gin.Context) {
	secret, url, err := s.deps.Identity.Enable2FA(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": secret, "url": url})
}

func (s *Server) verify2FASetup(c *gin.Context) {
	var req models.TwoFAVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Identity.Verify2FASetup(c.Request.Context(), c.GetString("userID"), req.Code); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "2FA enabled"})
}

func (s *Server) disable2FA(c *gin.Context) {
	var req models.TwoFAVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Identity.Disable2FA(c.Request.Context(), c.GetString("userID"), req.Code); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "2FA disabled"})
}

// --- ONBOARDING ---

func (s *Server) onboardingStatus(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	status, err := s.deps.Onboarding.Status(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getBusinessProfile(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	profile, err := s.deps.Onboarding.GetProfile(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) saveDescription(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var req struct {
		Description string `json:"description" binding:"required,min=10,max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := s.deps.Onboarding.SaveDescription(c.Request.Context(), userID, req.Description)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) saveAudience(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var req struct {
		Audience string `json:"audience" binding:"required,min=5,max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := s.deps.Onboarding.SaveAudience(c.Request.Context(), userID, req.Audience)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) setSitemap(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var req struct {
		URL string `json:"url" binding:"required,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, links, err := s.deps.Onboarding.SetSitemap(c.Request.Context(), userID, req.URL)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "links": links})
}

// --- COMPETITORS ---

func (s *Server) listCompetitors(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	competitors, err := s.deps.Onboarding.ListCompetitors(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competitors": competitors})
}

func (s *Server) addCompetitor(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var req models.CompetitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	competitor, err := s.deps.Onboarding.AddCompetitor(c.Request.Context(), userID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, competitor)
}

func (s *Server) updateCompetitor(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	competitorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competitor id"})
		return
	}
	var req models.CompetitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	competitor, err := s.deps.Onboarding.UpdateCompetitor(c.Request.Context(), userID, competitorID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, competitor)
}

func (s *Server) deleteCompetitor(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	competitorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competitor id"})
		return
	}
	if err := s.deps.Onboarding.DeleteCompetitor(c.Request.Context(), userID, competitorID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "competitor deleted"})
}

// --- ARTICLES ---

func (s *Server) listArticles(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var filter models.ArticleFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list, err := s.deps.Articles.ListArticles(c.Request.Context(), userID, &filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": list})
}

func articleCacheKey(userID, articleID uuid.UUID) string {
	return "article:" + userID.String() + ":" + articleID.String()
}

func (s *Server) getArticle(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	articleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
		return
	}

	key := articleCacheKey(userID, articleID)
	if s.deps.Cache != nil {
		var cached models.Article
		if hit, err := s.deps.Cache.Get(c.Request.Context(), key, &cached); err == nil && hit {
			c.JSON(http.StatusOK, &cached)
			return
		}
	}

	article, err := s.deps.Articles.GetArticle(c.Request.Context(), userID, articleID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	// Completed articles are immutable, safe to cache
	if s.deps.Cache != nil && article.Status == models.ArticleStatusCompleted {
		_ = s.deps.Cache.Set(c.Request.Context(), key, article, articleCacheTTL)
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) deleteArticle(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	articleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
		return
	}
	if err := s.deps.Articles.DeleteArticle(c.Request.Context(), userID, articleID); err != nil {
		s.writeError(c, err)
		return
	}
	if s.deps.Cache != nil {
		_ = s.deps.Cache.Delete(c.Request.Context(), articleCacheKey(userID, articleID))
	}
	c.JSON(http.StatusOK, gin.H{"message": "article deleted"})
}

func (s *Server) generateArticle(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	article, err := s.deps.Articles.RequestGeneration(c.Request.Context(), userID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, article)
}

// --- CONTENT PLAN ---

func (s *Server) listContentPlan(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	items, err := s.deps.Articles.ListPlan(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) createContentPlan(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var req models.ContentPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, err := s.deps.Articles.CreatePlan(c.Request.Context(), userID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": items})
}

// --- BILLING ---

func (s *Server) getSubscription(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	sub, err := s.deps.Billing.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) changePlan(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	var req struct {
		Plan string `json:"plan" binding:"required,oneof=trial starter pro"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := s.deps.Billing.ChangePlan(c.Request.Context(), userID, models.Plan(req.Plan))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) cancelSubscription(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	sub, err := s.deps.Billing.Cancel(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) listUsage(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	records, err := s.deps.Billing.ListUsage(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": records})
}

func (s *Server) remainingCredits(c *gin.Context) {
	userID, ok := s.userUUID(c)
	if !ok {
		return
	}
	remaining, err := s.deps.Billing.RemainingCredits(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": remaining})
}

// --- PROGRESS STREAM ---

func (s *Server) progressWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}
	claims, err := s.deps.Identity.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if s.deps.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "progress stream unavailable"})
		return
	}
	s.deps.Hub.ServeWS(c.Writer, c.Request, claims.UserID)
}

// --- ADMIN ---

func (s *Server) adminListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	users, total, err := s.deps.Identity.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

func (s *Server) adminCacheStats(c *gin.Context) {
	if s.deps.Cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, s.deps.Cache.Stats())
}
