package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/lamontai/lamontai/internal/articles"
	"github.com/lamontai/lamontai/internal/billing"
	"github.com/lamontai/lamontai/internal/cache"
	"github.com/lamontai/lamontai/internal/config"
	"github.com/lamontai/lamontai/internal/identity"
	"github.com/lamontai/lamontai/internal/onboarding"
	"github.com/lamontai/lamontai/internal/progress"
	"github.com/lamontai/lamontai/internal/ratelimit"
	"github.com/lamontai/lamontai/pkg/metrics"
	"github.com/lamontai/lamontai/pkg/models"
)

// ReadyFunc reports per-dependency readiness; an empty map means ready
type ReadyFunc func(ctx context.Context) map[string]string

// Deps carries the services the HTTP surface exposes
type Deps struct {
	Identity   identity.IdentityService
	Billing    billing.BillingService
	Onboarding onboarding.OnboardingService
	Articles   articles.ArticleService
	Limiter    *ratelimit.PlanLimiter
	Cache      *cache.Cache
	Hub        *progress.Hub
	Ready      ReadyFunc
}

// Server is the API server
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	cfg       config.HTTPServerConfig
	deps      Deps
	validator *validator.Validate
	ipLimiter gin.HandlerFunc
	httpSrv   *http.Server
}

// NewServer creates the API server with injected service interfaces
func NewServer(logger *zap.Logger, cfg config.HTTPServerConfig, deps Deps) *Server {
	server := &Server{
		logger:    logger.Named("api"),
		cfg:       cfg,
		deps:      deps,
		validator: validator.New(),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("lamontai-api"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Per-IP limit guards the unauthenticated routes against brute force
	store := memory.NewStore()
	rate, _ := limiter.NewRateFromFormatted("60-M")
	server.ipLimiter = ginlimiter.NewMiddleware(limiter.New(store, rate))

	server.router = router
	server.registerRoutes()
	return server
}

// Router returns the internal Gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving on addr and blocks until the listener fails
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.logger.Info("Starting API server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/health", s.healthCheck)
		public.GET("/ready", s.readyCheck)

		public.GET("/docs/openapi.yaml", func(c *gin.Context) {
			c.File("docs/openapi.yaml")
		})
		public.GET("/docs", func(c *gin.Context) {
			html := `<!DOCTYPE html>
			<html>
			<head>
			  <title>LamontAI API</title>
			  <meta charset="utf-8" />
			  <meta name="viewport" content="width=device-width, initial-scale=1">
			  <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
			</head>
			<body>
			  <redoc spec-url='/api/v1/docs/openapi.yaml'></redoc>
			</body>
			</html>`
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		})

		auth := public.Group("/auth", s.ipLimiter)
		{
			auth.POST("/register", s.register)
			auth.POST("/login", s.login)
			auth.POST("/refresh", s.refresh)
			auth.POST("/2fa/verify", s.loginVerify2FA)
		}
	}

	protected := s.router.Group("/api/v1")
	protected.Use(s.authMiddleware(), s.planRateLimit(ratelimit.ClassAPI))
	{
		user := protected.Group("/user")
		{
			user.GET("/profile", s.getProfile)
			user.PUT("/profile", s.updateProfile)
			user.PUT("/password", s.changePassword)
			user.GET("/settings", s.getSettings)
			user.PUT("/settings", s.updateSettings)

			twoFA := user.Group("/2fa")
			{
				twoFA.POST("/enable", s.enable2FA)
				twoFA.POST("/verify", s.verify2FASetup)
				twoFA.POST("/disable", s.disable2FA)
			}
		}

		onboard := protected.Group("/onboarding")
		{
			onboard.GET("/status", s.onboardingStatus)
			onboard.GET("/profile", s.getBusinessProfile)
			onboard.PUT("/description", s.saveDescription)
			onboard.PUT("/audience", s.saveAudience)
			onboard.PUT("/sitemap", s.setSitemap)

			competitors := onboard.Group("/competitors")
			{
				competitors.GET("", s.listCompetitors)
				competitors.POST("", s.addCompetitor)
				competitors.PUT("/:id", s.updateCompetitor)
				competitors.DELETE("/:id", s.deleteCompetitor)
			}
		}

		art := protected.Group("/articles")
		{
			art.GET("", s.listArticles)
			art.GET("/:id", s.getArticle)
			art.DELETE("/:id", s.deleteArticle)
			art.POST("/generate", s.planRateLimit(ratelimit.ClassGenerate), s.generateArticle)
		}

		plan := protected.Group("/plan")
		{
			plan.GET("", s.listContentPlan)
			plan.POST("", s.createContentPlan)
		}

		bill := protected.Group("/billing")
		{
			bill.GET("/subscription", s.getSubscription)
			bill.PUT("/subscription", s.changePlan)
			bill.DELETE("/subscription", s.cancelSubscription)
			bill.GET("/usage", s.listUsage)
			bill.GET("/credits", s.remainingCredits)
		}
	}

	// Progress stream authenticates via query token; browsers cannot set
	// headers on WebSocket upgrades.
	s.router.GET("/api/v1/ws", s.progressWS)

	admin := s.router.Group("/api/v1/admin")
	admin.Use(s.authMiddleware(), s.adminMiddleware())
	{
		admin.GET("/users", s.adminListUsers)
		admin.GET("/cache/stats", s.adminCacheStats)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func (s *Server) readyCheck(c *gin.Context) {
	if s.deps.Ready == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	failures := s.deps.Ready(c.Request.Context())
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failures": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// authMiddleware validates the bearer token and stores the claims
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}
		claims, err := s.deps.Identity.ValidateToken(authHeader[7:])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID.String())
		c.Set("plan", string(claims.Plan))
		c.Set("role", claims.Role)
		c.Next()
	}
}

func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// planRateLimit enforces the per-user budget of the route class
func (s *Server) planRateLimit(class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Limiter == nil {
			c.Next()
			return
		}
		userID := c.GetString("userID")
		plan := models.Plan(c.GetString("plan"))
		allowed, info, err := s.deps.Limiter.Allow(c.Request.Context(), userID, plan, class)
		if err != nil {
			s.logger.Warn("Rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
		if !allowed {
			metrics.RateLimited.WithLabelValues(class).Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "retry_after": info.ResetAt})
			c.Abort()
			return
		}
		c.Next()
	}
}

// userUUID returns the authenticated user ID set by authMiddleware
func (s *Server) userUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user context"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service errors onto HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrInvalidTOTP):
		status = http.StatusUnauthorized
	case errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, identity.ErrMFAState):
		status = http.StatusConflict
	case errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, articles.ErrArticleNotFound),
		errors.Is(err, onboarding.ErrCompetitorNotFound),
		errors.Is(err, billing.ErrNoSubscription):
		status = http.StatusNotFound
	case errors.Is(err, billing.ErrQuotaExceeded):
		status = http.StatusPaymentRequired
	case errors.Is(err, billing.ErrInactive):
		status = http.StatusForbidden
	case errors.Is(err, articles.ErrNoKeywords):
		status = http.StatusBadRequest
	case errors.Is(err, articles.ErrQueueFull):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Handler error", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
