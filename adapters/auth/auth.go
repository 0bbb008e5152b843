package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"towbid/models"
)

var (
	// ErrWrongCredential 表示帳號或密碼錯誤，兩種情況刻意不區分
	ErrWrongCredential = errors.New("wrong email or password")
	// ErrEmailTaken 表示信箱已被註冊
	ErrEmailTaken = errors.New("email is already registered")
	// ErrUserNotFound 表示找不到使用者
	ErrUserNotFound = errors.New("user not found")
)

type providerOptions struct {
	logger   *slog.Logger
	tokenTTL time.Duration
	cost     int
}

type ProviderOption func(*providerOptions)

// WithProviderLogger 設置日誌記錄器
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// WithProviderTokenTTL 設置 access token 的有效期間
func WithProviderTokenTTL(ttl time.Duration) ProviderOption {
	return func(o *providerOptions) {
		o.tokenTTL = ttl
	}
}

// WithProviderBcryptCost 設置 bcrypt 的運算成本，測試時調低加速
func WithProviderBcryptCost(cost int) ProviderOption {
	return func(o *providerOptions) {
		o.cost = cost
	}
}

// Provider 提供信箱加密碼的註冊登入，與以 JWT 為載體的身分驗證
type Provider struct {
	db     *gorm.DB
	secret []byte
	logger *slog.Logger
	opts   providerOptions
}

// NewProvider 建立認證提供者
func NewProvider(db *gorm.DB, secret []byte, opts ...ProviderOption) (*Provider, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if len(secret) == 0 {
		return nil, errors.New("secret cannot be empty")
	}

	options := providerOptions{
		logger:   slog.Default(),
		tokenTTL: 24 * time.Hour,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Provider{
		db:     db,
		secret: secret,
		logger: options.logger.With(slog.String("caller", "AuthProvider")),
		opts:   options,
	}, nil
}

// SignUp 註冊新使用者並回傳 access token
func (p *Provider) SignUp(ctx context.Context, username, email, password string, role models.UserRole) (*models.User, string, error) {
	const op = "AuthProvider.SignUp"
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || len(password) < 8 {
		return nil, "", errors.New("username, email and a password of at least 8 characters are required")
	}
	if role == "" {
		role = models.RoleBidder
	}

	var count int64
	result := p.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).Count(&count)
	if result.Error != nil {
		return nil, "", fmt.Errorf("[%s] Fail to check email, err=%w", op, result.Error)
	}
	if count > 0 {
		return nil, "", ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.opts.cost)
	if err != nil {
		return nil, "", fmt.Errorf("[%s] Fail to hash password, err=%w", op, err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if result := p.db.WithContext(ctx).Create(&user); result.Error != nil {
		return nil, "", fmt.Errorf("[%s] Fail to create user, err=%w", op, result.Error)
	}

	token, err := IssueToken(p.secret, &user, p.opts.tokenTTL)
	if err != nil {
		return nil, "", err
	}
	p.logger.Info("user signed up", slog.String("userId", user.ID.String()))
	return &user, token, nil
}

// SignIn 驗證帳號密碼並回傳 access token
func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.User, string, error) {
	const op = "AuthProvider.SignIn"
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	result := p.db.WithContext(ctx).First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, "", ErrWrongCredential
		}
		return nil, "", fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrWrongCredential
	}

	token, err := IssueToken(p.secret, &user, p.opts.tokenTTL)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// ChangePassword 在驗證舊密碼後更新密碼
func (p *Provider) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	const op = "AuthProvider.ChangePassword"
	if len(newPassword) < 8 {
		return errors.New("new password must be at least 8 characters")
	}

	var user models.User
	result := p.db.WithContext(ctx).First(&user, "id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrWrongCredential
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.opts.cost)
	if err != nil {
		return fmt.Errorf("[%s] Fail to hash password, err=%w", op, err)
	}
	result = p.db.WithContext(ctx).Model(&user).Update("password_hash", string(hash))
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to update password, err=%w", op, result.Error)
	}
	return nil
}

// CurrentUser 依 token 取出使用者
func (p *Provider) CurrentUser(ctx context.Context, tokenString string) (*models.User, error) {
	const op = "AuthProvider.CurrentUser"
	claims, err := ParseToken(p.secret, tokenString)
	if err != nil {
		return nil, err
	}

	var user models.User
	result := p.db.WithContext(ctx).First(&user, "id = ?", claims.UserID())
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error)
	}
	return &user, nil
}
