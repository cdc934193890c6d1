package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"attendease/backend/config"
	"attendease/backend/internal/api/handler"
	"attendease/backend/internal/api/middleware"
	"attendease/backend/internal/model"
	"attendease/backend/pkg/jwt"
	"attendease/backend/pkg/redis"
)

const (
	defaultBodyLimit = 1 << 20 // 1MB
	uploadBodyLimit  = 5 << 20 // 5MB

	loginRateLimit  = 10
	resetRateLimit  = 5
	rateLimitWindow = 15 * time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jwtAuth := middleware.JWTAuth(jwtMgr, rdb)
	adminOnly := middleware.RoleAuth(model.RoleAdmin)

	// 上传单独分组：嵌套的 MaxBytesReader 以最小值为准
	upload := r.Group("/api/v1/timetables", middleware.BodyLimit(uploadBodyLimit), jwtAuth, adminOnly)
	{
		upload.POST("/upload", h.Timetable.Upload)
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1", middleware.BodyLimit(defaultBodyLimit))
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(rdb, loginRateLimit, rateLimitWindow), h.Auth.Login)
			auth.POST("/google", middleware.RateLimit(rdb, loginRateLimit, rateLimitWindow), h.Auth.LoginGoogle)
			auth.POST("/refresh", h.Auth.RefreshToken)
			auth.POST("/password-reset", middleware.RateLimit(rdb, resetRateLimit, rateLimitWindow), h.Auth.RequestPasswordReset)
			auth.POST("/password-reset/confirm", middleware.RateLimit(rdb, resetRateLimit, rateLimitWindow), h.Auth.ConfirmPasswordReset)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(jwtAuth)
		{
			// 认证模块（需要认证）
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.PUT("/auth/password", h.Auth.ChangePassword)

			// 用户模块
			users := authorized.Group("/users", adminOnly)
			{
				users.GET("", h.User.ListUsers)
				users.GET("/:id", h.User.GetUser)
				users.POST("", h.User.CreateUser)
				users.PUT("/:id", h.User.UpdateUser)
				users.DELETE("/:id", h.User.DeleteUser)
				users.POST("/:id/reset-password", h.User.ResetPassword)
			}

			// 审批教师列表（学生提交申请时选择）
			authorized.GET("/faculty", h.User.ListFaculty)

			// 课表模块
			timetables := authorized.Group("/timetables")
			{
				timetables.GET("/me", middleware.RoleAuth(model.RoleStudent), h.Timetable.GetMySchedule)
				timetables.GET("/me.ics", middleware.RoleAuth(model.RoleStudent), h.Export.ExportMyCalendar)
				timetables.GET("", adminOnly, h.Timetable.ListEntries)
				timetables.POST("", adminOnly, h.Timetable.CreateEntry)
				timetables.PUT("/:id", adminOnly, h.Timetable.UpdateEntry)
				timetables.DELETE("/:id", adminOnly, h.Timetable.DeleteEntry)
				timetables.POST("/bulk-delete", adminOnly, h.Timetable.BulkDelete)
			}

			// 缺课申请模块
			requests := authorized.Group("/requests")
			{
				requests.POST("", middleware.RoleAuth(model.RoleStudent), h.Request.Submit)
				requests.GET("/mine", middleware.RoleAuth(model.RoleStudent), h.Request.Mine)
				requests.GET("/inbox", middleware.RoleAuth(model.RoleFaculty, model.RoleAdmin), h.Request.Inbox)
				requests.GET("", adminOnly, h.Request.List)
				requests.GET("/:id", h.Request.Get) // 本人 / 审批人 / 管理员（Service 层鉴权）
				requests.PUT("/:id/decision", middleware.RoleAuth(model.RoleFaculty, model.RoleAdmin), h.Request.Decide)
			}

			// 预批准活动
			events := authorized.Group("/events")
			{
				events.GET("", h.Event.List)
				events.GET("/:id", h.Event.Get)
				events.POST("", adminOnly, h.Event.Create)
				events.PUT("/:id", adminOnly, h.Event.Update)
				events.DELETE("/:id", adminOnly, h.Event.Delete)
			}

			authorized.GET("/dashboard/stats", adminOnly, h.Dashboard.Stats)

			// 导出模块
			authorized.GET("/export/requests", adminOnly, h.Export.ExportRequests)
		}
	}

	return r
}
