package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"attendease/backend/internal/dto"
	"attendease/backend/internal/service"
	"attendease/backend/pkg/response"
)

// EventHandler 预批准活动 HTTP 处理器
type EventHandler struct {
	eventSvc service.EventService
}

// NewEventHandler 创建 EventHandler
func NewEventHandler(eventSvc service.EventService) *EventHandler {
	return &EventHandler{eventSvc: eventSvc}
}

// List 活动列表
// GET /api/v1/events
func (h *EventHandler) List(c *gin.Context) {
	events, err := h.eventSvc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OK(c, events)
}

// Get 活动详情
// GET /api/v1/events/:id
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.eventSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleEventError(c, err)
		return
	}
	response.OK(c, event)
}

// Create 新增活动（管理员）
// POST /api/v1/events
func (h *EventHandler) Create(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	event, err := h.eventSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}
	response.Created(c, event)
}

// Update 编辑活动（管理员）
// PUT /api/v1/events/:id
func (h *EventHandler) Update(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	event, err := h.eventSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}
	response.OK(c, event)
}

// Delete 删除活动（管理员）
// DELETE /api/v1/events/:id
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.eventSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleEventError(c, err)
		return
	}
	response.OK(c, nil)
}

func handleEventError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrEventNotFound) {
		response.NotFound(c, 18001, "活动不存在")
		return
	}
	response.InternalError(c)
}
