package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"attendease/backend/config"
	"attendease/backend/internal/dto"
	"attendease/backend/internal/model"
	"attendease/backend/internal/repository"
	"attendease/backend/pkg/idtoken"
	"attendease/backend/pkg/jwt"
	"attendease/backend/pkg/mail"
	pkgredis "attendease/backend/pkg/redis"
)

var (
	ErrInvalidCredentials  = errors.New("邮箱或密码错误")
	ErrInvalidRefreshToken = errors.New("refresh token 无效或已过期")
	ErrOldPasswordWrong    = errors.New("原密码错误")
	ErrResetTokenInvalid   = errors.New("重置链接无效或已过期")
	ErrGoogleLoginDisabled = errors.New("未启用 Google 登录")
	ErrGoogleTokenInvalid  = errors.New("Google 身份校验失败")
)

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	// LoginGoogle 校验 Google ID Token；首次登录自动创建学生账号
	LoginGoogle(ctx context.Context, req *dto.GoogleLoginRequest) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	// Logout 将 access token 的 jti 加入黑名单直至其过期
	Logout(ctx context.Context, jti string, expiresAt time.Time) error
	Me(ctx context.Context, userID string) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error
	// RequestPasswordReset 对未知邮箱同样返回成功，避免泄露账号是否存在
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, req *dto.PasswordResetConfirmRequest) error
	// EnsureBootstrapAdmin 启动时确保初始管理员存在
	EnsureBootstrapAdmin(ctx context.Context) error
}

type authService struct {
	cfg      *config.Config
	repo     *repository.Repository
	jwtMgr   *jwt.Manager
	tokens   TokenStore
	verifier idtoken.Verifier
	mailer   mail.Sender
	logger   *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	tokens TokenStore,
	verifier idtoken.Verifier,
	mailer mail.Sender,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:      cfg,
		repo:     repo,
		jwtMgr:   jwtMgr,
		tokens:   tokens,
		verifier: verifier,
		mailer:   mailer,
		logger:   logger,
	}
}

// ────────────────────── Login ──────────────────────

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)；仅 Google 登录的账号没有密码
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 生成 Token 对
	return s.issueTokens(user, req.RememberMe)
}

// ────────────────────── LoginGoogle ──────────────────────

func (s *authService) LoginGoogle(ctx context.Context, req *dto.GoogleLoginRequest) (*dto.TokenResponse, error) {
	identity, err := s.verifier.Verify(req.IDToken)
	if err != nil {
		if errors.Is(err, idtoken.ErrDisabled) {
			return nil, ErrGoogleLoginDisabled
		}
		s.logger.Warn("Google ID Token 校验失败", zap.Error(err))
		return nil, ErrGoogleTokenInvalid
	}
	// 未验证的邮箱不能关联已有账号
	if !identity.EmailVerified {
		s.logger.Warn("Google 邮箱未验证", zap.String("email", identity.Email))
		return nil, ErrGoogleTokenInvalid
	}

	user, err := s.repo.User.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		name := strings.TrimSpace(identity.Name)
		if name == "" {
			name = identity.Email
		}
		user = &model.User{
			Name:         name,
			Email:        identity.Email,
			Role:         model.RoleStudent,
			AuthProvider: model.AuthProviderGoogle,
		}
		if err := s.repo.User.Create(ctx, user); err != nil {
			s.logger.Error("自动创建 Google 账号失败", zap.String("email", identity.Email), zap.Error(err))
			return nil, err
		}
		s.logger.Info("Google 首次登录，已创建学生账号", zap.String("id", user.UserID))
	default:
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	return s.issueTokens(user, req.RememberMe)
}

// ────────────────────── Refresh ──────────────────────

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	claims, err := s.jwtMgr.ParseToken(refreshToken)
	if err != nil || claims.TokenType != jwt.TokenTypeRefresh {
		return nil, ErrInvalidRefreshToken
	}

	revoked, err := s.tokens.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error("查询 token 黑名单失败", zap.Error(err))
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	// 轮换：旧 refresh token 作废
	if claims.ExpiresAt != nil {
		if err := s.tokens.BlacklistToken(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			s.logger.Warn("作废旧 refresh token 失败", zap.Error(err))
		}
	}

	return s.issueTokens(user, claims.RememberMe)
}

// ────────────────────── Logout ──────────────────────

func (s *authService) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := s.tokens.BlacklistToken(ctx, jti, ttl); err != nil {
		s.logger.Error("写入 token 黑名单失败", zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Me ──────────────────────

func (s *authService) Me(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── ChangePassword ──────────────────────

func (s *authService) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
		return ErrOldPasswordWrong
	}

	return s.setPassword(ctx, userID, req.NewPassword)
}

// ────────────────────── 密码重置 ──────────────────────

func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.User.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info("密码重置：邮箱不存在", zap.String("email", email))
			return nil
		}
		return err
	}

	token := uuid.NewString()
	if err := s.tokens.StoreResetToken(ctx, token, user.UserID, s.cfg.Auth.PasswordResetTTL); err != nil {
		s.logger.Error("保存重置令牌失败", zap.Error(err))
		return err
	}

	link := s.cfg.Auth.PasswordResetURL + "?token=" + url.QueryEscape(token)
	msg := mail.Message{
		ToAddress: user.Email,
		ToName:    user.Name,
		Subject:   "AttendEase 密码重置",
		Text: fmt.Sprintf("您好 %s：\n\n请在 %d 分钟内打开以下链接重置密码：\n%s\n\n如非本人操作请忽略此邮件。",
			user.Name, int(s.cfg.Auth.PasswordResetTTL.Minutes()), link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("发送重置邮件失败", zap.String("user_id", user.UserID), zap.Error(err))
	}
	return nil
}

func (s *authService) ConfirmPasswordReset(ctx context.Context, req *dto.PasswordResetConfirmRequest) error {
	userID, err := s.tokens.ConsumeResetToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, pkgredis.ErrKeyNotFound) {
			return ErrResetTokenInvalid
		}
		s.logger.Error("读取重置令牌失败", zap.Error(err))
		return err
	}

	if err := s.setPassword(ctx, userID, req.NewPassword); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	return nil
}

// ────────────────────── EnsureBootstrapAdmin ──────────────────────

func (s *authService) EnsureBootstrapAdmin(ctx context.Context) error {
	b := s.cfg.Bootstrap
	if b.AdminEmail == "" || b.AdminPassword == "" {
		return nil
	}

	if _, err := s.repo.User.GetByEmail(ctx, b.AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(b.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	name := b.AdminName
	if name == "" {
		name = "Administrator"
	}
	admin := &model.User{
		Name:               name,
		Email:              strings.ToLower(b.AdminEmail),
		PasswordHash:       string(hash),
		Role:               model.RoleAdmin,
		AuthProvider:       model.AuthProviderPassword,
		MustChangePassword: true,
	}
	if err := s.repo.User.Create(ctx, admin); err != nil {
		return fmt.Errorf("创建初始管理员失败: %w", err)
	}

	s.logger.Info("已创建初始管理员", zap.String("email", admin.Email))
	return nil
}

// ── 内部辅助方法 ──

func (s *authService) issueTokens(user *model.User, rememberMe bool) (*dto.TokenResponse, error) {
	accessToken, err := s.jwtMgr.GenerateAccessToken(user.UserID, user.Role)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	refreshToken, err := s.jwtMgr.GenerateRefreshToken(user.UserID, user.Role, rememberMe)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		User:         toUserResponse(user),
	}, nil
}

func (s *authService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}
	if err := s.repo.User.UpdatePassword(ctx, userID, string(hash), false); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("更新密码失败", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}
