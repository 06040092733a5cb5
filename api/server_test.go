package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lamontai/lamontai/api"
	"github.com/lamontai/lamontai/internal/articles"
	"github.com/lamontai/lamontai/internal/billing"
	"github.com/lamontai/lamontai/internal/cache"
	"github.com/lamontai/lamontai/internal/config"
	"github.com/lamontai/lamontai/internal/generation"
	"github.com/lamontai/lamontai/internal/identity"
	"github.com/lamontai/lamontai/internal/onboarding"
	"github.com/lamontai/lamontai/internal/ratelimit"
	"github.com/lamontai/lamontai/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedCompleter struct{}

func (fixedCompleter) Complete(ctx context.Context, system, user string) (*generation.Result, error) {
	return &generation.Result{
		Content:          "<h1>Generated</h1><p>Article body with enough words to count.</p>",
		Model:            "gpt-4o",
		PromptTokens:     100,
		CompletionTokens: 400,
	}, nil
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Settings{}, &models.BusinessProfile{},
		&models.Competitor{}, &models.Article{}, &models.ContentPlanItem{},
		&models.Subscription{}, &models.UsageRecord{},
	))

	logger := zap.NewNop()
	identitySvc, err := identity.NewService(logger, db, identity.Config{
		JWTSecret:       "test-access-secret",
		ExpirationHours: 1,
		RefreshSecret:   "test-refresh-secret",
		RefreshExpHours: 24,
	})
	require.NoError(t, err)
	billingSvc, err := billing.NewService(logger, db)
	require.NoError(t, err)
	onboardingSvc, err := onboarding.NewService(logger, db, &http.Client{Timeout: time.Second})
	require.NoError(t, err)
	articleSvc, err := articles.NewService(logger, db, fixedCompleter{}, billingSvc, nil, nil, articles.Config{Workers: 1, QueueSize: 8})
	require.NoError(t, err)
	require.NoError(t, articleSvc.Start())
	t.Cleanup(func() { _ = articleSvc.Stop() })

	srv := api.NewServer(logger, config.HTTPServerConfig{}, api.Deps{
		Identity:   identitySvc,
		Billing:    billingSvc,
		Onboarding: onboardingSvc,
		Articles:   articleSvc,
		Limiter:    ratelimit.NewPlanLimiter(nil, logger),
		Cache:      cache.New(nil, logger, time.Minute),
	})
	return &testEnv{router: srv.Router(), db: db}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": email, "password": "password123", "name": "Test User",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": email, "password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthAndReady(t *testing.T) {
	env := newTestServer(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/ready", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/user/profile", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterLoginProfile(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "alice@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/user/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "trial", user.Plan)

	// Registration opens a trial subscription
	w = env.do(t, http.MethodGet, "/api/v1/billing/subscription", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sub models.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
}

func TestDuplicateEmailConflict(t *testing.T) {
	env := newTestServer(t)
	env.registerAndLogin(t, "bob@example.com")
	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "bob@example.com", "password": "password123", "name": "Bob Again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGenerateArticleFlow(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "carol@example.com")

	w := env.do(t, http.MethodPost, "/api/v1/articles/generate", token, gin.H{"keyword": "best crm software"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var article models.Article
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &article))
	assert.Equal(t, models.ArticleStatusQueued, article.Status)

	// Poll the store directly so the wait does not consume API budget
	path := fmt.Sprintf("/api/v1/articles/%s", article.ID)
	require.Eventually(t, func() bool {
		var got models.Article
		if err := env.db.Where("id = ?", article.ID).First(&got).Error; err != nil {
			return false
		}
		return got.Status == models.ArticleStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp := env.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var fetched models.Article
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &fetched))
	assert.Equal(t, models.ArticleStatusCompleted, fetched.Status)
	assert.NotZero(t, fetched.WordCount)

	// Second read is served from cache and still matches
	resp = env.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var cached models.Article
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cached))
	assert.Equal(t, article.ID, cached.ID)
	assert.Equal(t, models.ArticleStatusCompleted, cached.Status)

	w = env.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateRateLimited(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "dave@example.com")

	// Trial plan allows 2 generations per hour
	limit := models.GetPlanLimits(models.PlanTrial).GenerationsPerHour
	for i := 0; i < limit; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/articles/generate", token, gin.H{"keyword": fmt.Sprintf("keyword %d", i)})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}
	w := env.do(t, http.MethodPost, "/api/v1/articles/generate", token, gin.H{"keyword": "over the line"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestOnboardingFlow(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "erin@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/onboarding/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status onboarding.StepStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Done)

	w = env.do(t, http.MethodPut, "/api/v1/onboarding/description", token, gin.H{
		"description": "We sell handcrafted mechanical keyboards to enthusiasts.",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/onboarding/competitors", token, gin.H{
		"name": "KeebCo", "domain": "keebco.example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, "/api/v1/onboarding/audience", token, gin.H{
		"audience": "Keyboard hobbyists and remote workers.",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/onboarding/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Description)
	assert.True(t, status.Competitors)
	assert.True(t, status.Audience)
	assert.False(t, status.Sitemap)
	assert.False(t, status.Done)
}

func TestSettingsUpdate(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "frank@example.com")

	w := env.do(t, http.MethodPut, "/api/v1/user/settings", token, gin.H{
		"tone": "casual", "word_count": 2000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settings models.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "casual", settings.Tone)
	assert.Equal(t, 2000, settings.WordCount)
	assert.Equal(t, "en", settings.Language)
}

func TestChangePlanAndCredits(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "grace@example.com")

	w := env.do(t, http.MethodPut, "/api/v1/billing/subscription", token, gin.H{"plan": "pro"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sub models.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, "pro", sub.Plan)
	assert.Equal(t, models.SubscriptionActive, sub.Status)

	w = env.do(t, http.MethodGet, "/api/v1/billing/credits", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var credits struct {
		Remaining int `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &credits))
	assert.Equal(t, models.GetPlanLimits(models.PlanPro).ArticlesPerMonth, credits.Remaining)
}

func TestAdminForbiddenForUsers(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "harry@example.com")
	w := env.do(t, http.MethodGet, "/api/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminListUsers(t *testing.T) {
	env := newTestServer(t)
	token := env.registerAndLogin(t, "iris@example.com")
	require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", "iris@example.com").Update("role", "admin").Error)

	w := env.do(t, http.MethodGet, "/api/v1/admin/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Users []models.User `json:"users"`
		Total int64         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.EqualValues(t, 1, out.Total)
}
