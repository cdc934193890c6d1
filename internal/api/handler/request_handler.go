package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendease/backend/internal/dto"
	"attendease/backend/internal/service"
	pkgerrors "attendease/backend/pkg/errors"
	"attendease/backend/pkg/response"
)

// RequestHandler 缺课申请 HTTP 处理器
type RequestHandler struct {
	requestSvc service.RequestService
}

// NewRequestHandler 创建 RequestHandler
func NewRequestHandler(requestSvc service.RequestService) *RequestHandler {
	return &RequestHandler{requestSvc: requestSvc}
}

// Submit 学生提交缺课申请
// POST /api/v1/requests
func (h *RequestHandler) Submit(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.requestSvc.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		handleRequestError(c, err)
		return
	}
	response.Created(c, result)
}

// Mine 学生本人的申请
// GET /api/v1/requests/mine
func (h *RequestHandler) Mine(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.requestSvc.Mine(c.Request.Context(), userID)
	if err != nil {
		handleRequestError(c, err)
		return
	}
	response.OK(c, list)
}

// Inbox 待本人审批的申请
// GET /api/v1/requests/inbox
func (h *RequestHandler) Inbox(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, err := h.requestSvc.Inbox(c.Request.Context(), caller)
	if err != nil {
		handleRequestError(c, err)
		return
	}
	response.OK(c, list)
}

// Get 申请详情，学生仅能查看本人申请，教师仅能查看分配给自己的申请
// GET /api/v1/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		handleRequestError(c, err)
		return
	}
	response.OK(c, result)
}

// Decide 审批
// PUT /api/v1/requests/:id/decision
func (h *RequestHandler) Decide(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.requestSvc.Decide(c.Request.Context(), caller, c.Param("id"), &req)
	if err != nil {
		handleRequestError(c, err)
		return
	}
	response.OK(c, result)
}

// List 全部申请（管理员）
// GET /api/v1/requests
func (h *RequestHandler) List(c *gin.Context) {
	var req dto.RequestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.requestSvc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// requestValidationCodes 提交与审批阶段的校验错误
var requestValidationCodes = []struct {
	err  error
	code int
}{
	{service.ErrRequestNoClasses, 17002},
	{service.ErrRequestReasonRequired, 17003},
	{service.ErrRequestApproverRequired, 17004},
	{service.ErrRequestApproverNameRequired, 17005},
	{service.ErrRequestApproverInvalid, 17006},
	{service.ErrRequestClassNotFound, 17007},
	{service.ErrRequestClassNotInTimetable, 17008},
	{service.ErrRequestEventNotFound, 17009},
	{service.ErrRequestInvalidStatus, 17010},
	{service.ErrRequestCommentRequired, 17011},
}

// handleRequestError 统一缺课申请模块错误映射
func handleRequestError(c *gin.Context, err error) {
	for _, v := range requestValidationCodes {
		if errors.Is(err, v.err) {
			response.BadRequest(c, v.code, err.Error())
			return
		}
	}

	switch {
	case errors.Is(err, service.ErrRequestNotFound):
		response.NotFound(c, 17001, "申请不存在")
	case errors.Is(err, service.ErrRequestAlreadyDecided):
		response.Conflict(c, 17012, err.Error())
	case errors.Is(err, service.ErrRequestForbidden):
		response.Forbidden(c, 17013, err.Error())
	case errors.Is(err, service.ErrRequestOnlyStudents):
		response.Forbidden(c, 17014, err.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 17015, "申请已被他人处理，请刷新后重试")
	case errors.Is(err, service.ErrStudentProfileIncomplete):
		response.Error(c, http.StatusUnprocessableEntity, 15008, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 20001, "用户不存在")
	default:
		response.InternalError(c)
	}
}
