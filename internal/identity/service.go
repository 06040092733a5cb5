package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lamontai/lamontai/pkg/models"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Sentinel errors mapped to HTTP statuses by the API layer
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidTOTP        = errors.New("invalid 2FA code")
	ErrMFAState           = errors.New("2FA state does not allow this operation")
)

// IdentityService defines user identity operations
type IdentityService interface {
	Start() error
	Stop() error
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.LoginResponse, error)
	ValidateToken(token string) (*TokenClaims, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID, name string) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, req *models.ChangePasswordRequest) error
	GetSettings(ctx context.Context, userID string) (*models.Settings, error)
	UpdateSettings(ctx context.Context, userID string, req *models.SettingsRequest) (*models.Settings, error)
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, int64, error)
	Enable2FA(ctx context.Context, userID string) (secret, url string, err error)
	Verify2FASetup(ctx context.Context, userID, code string) error
	Verify2FA(ctx context.Context, userID, code string) (*models.LoginResponse, error)
	Disable2FA(ctx context.Context, userID, code string) error
}

// TokenClaims is the validated content of an access token
type TokenClaims struct {
	UserID uuid.UUID
	Plan   models.Plan
	Role   string
}

// Config holds token signing settings
type Config struct {
	JWTSecret       string
	ExpirationHours int
	RefreshSecret   string
	RefreshExpHours int
	TOTPIssuer      string
}

// Service implements IdentityService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	cfg    Config
}

// NewService creates a new IdentityService
func NewService(logger *zap.Logger, db *gorm.DB, cfg Config) (*Service, error) {
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("jwt secrets are required")
	}
	if cfg.ExpirationHours == 0 {
		cfg.ExpirationHours = 24
	}
	if cfg.RefreshExpHours == 0 {
		cfg.RefreshExpHours = 168
	}
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = "LamontAI"
	}
	return &Service{
		logger: logger.Named("identity"),
		db:     db,
		cfg:    cfg,
	}, nil
}

// Start starts the identity service
func (s *Service) Start() error {
	s.logger.Info("Identity service started")
	return nil
}

// Stop stops the identity service
func (s *Service) Stop() error {
	s.logger.Info("Identity service stopped")
	return nil
}

// Register registers a new user on the trial plan
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hashed),
		Name:         req.Name,
		Plan:         string(models.PlanTrial),
		Role:         "user",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Seed default settings so the dashboard has something to edit
	settings := defaultSettings(user.ID)
	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}

	s.logger.Info("User registered", zap.String("userID", user.ID.String()))
	return user, nil
}

// Login verifies credentials and issues tokens, or requests a 2FA step
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		return &models.LoginResponse{
			Requires2FA: true,
			UserID:      user.ID,
		}, nil
	}

	return s.issueTokens(ctx, &user)
}

// Verify2FA completes a 2FA login
func (s *Service) Verify2FA(ctx context.Context, userID, code string) (*models.LoginResponse, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled || user.TOTPSecret == "" {
		return nil, ErrMFAState
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return nil, ErrInvalidTOTP
	}
	return s.issueTokens(ctx, user)
}

// Enable2FA generates a TOTP secret for the user; Verify2FASetup activates it
func (s *Service) Enable2FA(ctx context.Context, userID string) (string, string, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user.MFAEnabled {
		return "", "", ErrMFAState
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.TOTPIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	user.TOTPSecret = key.Secret()
	user.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return "", "", fmt.Errorf("failed to save user: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Verify2FASetup activates 2FA after the user proves they hold the secret
func (s *Service) Verify2FASetup(ctx context.Context, userID, code string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled || user.TOTPSecret == "" {
		return ErrMFAState
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return ErrInvalidTOTP
	}

	user.MFAEnabled = true
	user.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Disable2FA turns off 2FA after verifying a current code
func (s *Service) Disable2FA(ctx context.Context, userID, code string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return ErrMFAState
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return ErrInvalidTOTP
	}

	user.MFAEnabled = false
	user.TOTPSecret = ""
	user.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Refresh exchanges a refresh token for a new token pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.LoginResponse, error) {
	userID, err := s.parseToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

// ValidateToken validates an access token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*TokenClaims, error) {
	userID, err := s.parseToken(tokenString, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	user, err := s.findUser(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	return &TokenClaims{
		UserID: user.ID,
		Plan:   models.Plan(user.Plan),
		Role:   user.Role,
	}, nil
}

// GetUser gets a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, userID)
}

// UpdateProfile updates mutable profile fields
func (s *Service) UpdateProfile(ctx context.Context, userID, name string) (*models.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Name = name
	user.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password before setting a new one
func (s *Service) ChangePassword(ctx context.Context, userID string, req *models.ChangePasswordRequest) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Current)); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.New), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hashed)
	user.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// ListUsers pages through registered users for the admin surface
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]models.User, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").
		Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func defaultSettings(userID uuid.UUID) models.Settings {
	now := time.Now()
	return models.Settings{
		ID:        uuid.New(),
		UserID:    userID,
		Language:  "en",
		Tone:      "professional",
		WordCount: 1200,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetSettings loads the user's generation preferences, creating defaults
// when Register predates the settings table.
func (s *Service) GetSettings(ctx context.Context, userID string) (*models.Settings, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var settings models.Settings
	err = s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = defaultSettings(user.ID)
		if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
			return nil, fmt.Errorf("failed to create settings: %w", err)
		}
		return &settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &settings, nil
}

// UpdateSettings applies the fields present in req
func (s *Service) UpdateSettings(ctx context.Context, userID string, req *models.SettingsRequest) (*models.Settings, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Language != "" {
		settings.Language = req.Language
	}
	if req.Tone != "" {
		settings.Tone = req.Tone
	}
	if req.WordCount > 0 {
		settings.WordCount = req.WordCount
	}
	if req.AutoDetail != nil {
		settings.AutoDetail = *req.AutoDetail
	}
	settings.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (s *Service) issueTokens(ctx context.Context, user *models.User) (*models.LoginResponse, error) {
	access, err := s.signToken(user.ID.String(), s.cfg.JWTSecret, time.Duration(s.cfg.ExpirationHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.signToken(user.ID.String(), s.cfg.RefreshSecret, time.Duration(s.cfg.RefreshExpHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	user.LastLogin = time.Now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", user.LastLogin).Error; err != nil {
		s.logger.Warn("Failed to record last login", zap.Error(err))
	}

	return &models.LoginResponse{
		User:         user,
		Token:        access,
		RefreshToken: refresh,
	}, nil
}

func (s *Service) signToken(userID, secret string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	})
	return token.SignedString([]byte(secret))
}

func (s *Service) parseToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}
