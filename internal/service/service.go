package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"attendease/backend/config"
	"attendease/backend/internal/repository"
	"attendease/backend/pkg/idtoken"
	"attendease/backend/pkg/jwt"
	"attendease/backend/pkg/mail"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth      AuthService
	User      UserService
	Timetable TimetableService
	Request   RequestService
	Event     EventService
	Dashboard DashboardService
	Export    ExportService
}

// Caller 当前请求的调用者身份（由 JWT 中间件注入）
type Caller struct {
	UserID string
	Role   string
}

// TokenStore 令牌存储（Redis 实现见 pkg/redis）
type TokenStore interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	StoreResetToken(ctx context.Context, token, userID string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

// Deps 构建 Service 所需的外部依赖
type Deps struct {
	Config   *config.Config
	Repo     *repository.Repository
	JWT      *jwt.Manager
	Tokens   TokenStore
	Verifier idtoken.Verifier
	Mailer   mail.Sender
	Logger   *zap.Logger
}

// NewService 创建 Service 聚合
func NewService(d Deps) *Service {
	loc := loadLocation(d.Config.Database.Timezone, d.Logger)
	return &Service{
		Auth:      NewAuthService(d.Config, d.Repo, d.JWT, d.Tokens, d.Verifier, d.Mailer, d.Logger),
		User:      NewUserService(d.Repo, d.Logger),
		Timetable: NewTimetableService(&d.Config.Timetable, d.Repo, loc, d.Logger),
		Request:   NewRequestService(&d.Config.Request, d.Repo, d.Mailer, d.Logger),
		Event:     NewEventService(d.Repo, d.Logger),
		Dashboard: NewDashboardService(d.Repo, d.Logger),
		Export:    NewExportService(d.Repo, loc, d.Logger),
	}
}

// loadLocation 解析课表时区，无效时回退到本地时区
func loadLocation(name string, logger *zap.Logger) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("无效的时区配置，使用本地时区", zap.String("timezone", name), zap.Error(err))
		return time.Local
	}
	return loc
}
