package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"attendease/backend/internal/api/middleware"
	"attendease/backend/internal/service"
	"attendease/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	s := c.GetString(middleware.ContextUserID)
	if s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetCaller 提取调用者身份（user_id + role）
func MustGetCaller(c *gin.Context) (service.Caller, bool) {
	userID := c.GetString(middleware.ContextUserID)
	role := c.GetString(middleware.ContextRole)
	if userID == "" || role == "" {
		response.Unauthorized(c, 10002, "未认证")
		return service.Caller{}, false
	}
	return service.Caller{UserID: userID, Role: role}, true
}

// tokenMeta 当前 access token 的 jti 与过期时间，用于登出
func tokenMeta(c *gin.Context) (string, time.Time) {
	return c.GetString(middleware.ContextTokenJTI), c.GetTime(middleware.ContextTokenExp)
}
