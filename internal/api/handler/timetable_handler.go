package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"attendease/backend/internal/dto"
	"attendease/backend/internal/service"
	"attendease/backend/pkg/response"
)

// TimetableHandler 课表模块 Handler
type TimetableHandler struct {
	svc service.TimetableService
}

// NewTimetableHandler 创建 TimetableHandler 实例
func NewTimetableHandler(svc service.TimetableService) *TimetableHandler {
	return &TimetableHandler{svc: svc}
}

// Upload 批量导入课表
// POST /api/v1/timetables/upload
//
// 支持两种方式：
//   - 文件上传: multipart/form-data, field="file"（.csv / .xlsx / .ics，
//     .ics 需额外提交 course 与 semester 表单字段）
//   - JSON: application/json, body={"rows": [...]}
func (h *TimetableHandler) Upload(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var (
		resp *dto.UploadResponse
		err  error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		resp, err = h.uploadFile(c, callerID)
	} else {
		var req dto.UploadRowsRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			if isBodyTooLarge(bindErr) {
				response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
				return
			}
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
		resp, err = h.svc.Upload(c.Request.Context(), req.Rows, callerID)
	}
	if err != nil {
		handleUploadError(c, resp, err)
		return
	}
	response.Created(c, resp)
}

func (h *TimetableHandler) uploadFile(c *gin.Context, callerID string) (*dto.UploadResponse, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(header.Filename), ".ics") {
		return h.svc.UploadICS(c.Request.Context(), file, c.PostForm("course"), c.PostForm("semester"), callerID)
	}

	rows, err := service.ParseUploadFile(header.Filename, file)
	if err != nil {
		return nil, err
	}
	return h.svc.Upload(c.Request.Context(), rows, callerID)
}

// ListEntries 课表条目列表（管理员）
// GET /api/v1/timetables
func (h *TimetableHandler) ListEntries(c *gin.Context) {
	var req dto.TimetableListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	entries, total, err := h.svc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OKPage(c, entries, total, req.GetPage(), req.GetPageSize())
}

// CreateEntry 手动新增课表条目
// POST /api/v1/timetables
func (h *TimetableHandler) CreateEntry(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.TimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	entry, err := h.svc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.Created(c, entry)
}

// UpdateEntry 编辑课表条目
// PUT /api/v1/timetables/:id
func (h *TimetableHandler) UpdateEntry(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.TimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	entry, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, entry)
}

// DeleteEntry 删除课表条目
// DELETE /api/v1/timetables/:id
func (h *TimetableHandler) DeleteEntry(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, nil)
}

// BulkDelete 按 course / semester 批量删除
// POST /api/v1/timetables/bulk-delete
func (h *TimetableHandler) BulkDelete(c *gin.Context) {
	var req dto.BulkDeleteTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.svc.BulkDelete(c.Request.Context(), &req)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, result)
}

// GetMySchedule 学生本人课表
// GET /api/v1/timetables/me
func (h *TimetableHandler) GetMySchedule(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	days, err := h.svc.MySchedule(c.Request.Context(), userID)
	if err != nil {
		handleTimetableError(c, err)
		return
	}
	response.OK(c, days)
}

// ── 错误映射 ──

// handleUploadError 导入失败；无有效行时携带逐行原因
func handleUploadError(c *gin.Context, resp *dto.UploadResponse, err error) {
	switch {
	case isBodyTooLarge(err):
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "上传文件过大")
	case errors.Is(err, http.ErrMissingFile):
		response.BadRequest(c, 10001, "请上传文件字段 file")
	case errors.Is(err, service.ErrTimetableNoValidRows):
		response.ErrorWithData(c, http.StatusUnprocessableEntity, 15003, err.Error(), resp)
	case errors.Is(err, service.ErrTimetableEmptyUpload):
		response.BadRequest(c, 15004, err.Error())
	case errors.Is(err, service.ErrTimetableTooManyRows):
		response.BadRequest(c, 15005, err.Error())
	case errors.Is(err, service.ErrUploadUnsupportedFormat):
		response.BadRequest(c, 15010, err.Error())
	case errors.Is(err, service.ErrUploadNoHeader), errors.Is(err, service.ErrUploadParseFailed):
		response.BadRequest(c, 15011, err.Error())
	case errors.Is(err, service.ErrICSInvalid), errors.Is(err, service.ErrICSNoEvents):
		response.BadRequest(c, 15012, err.Error())
	default:
		handleTimetableError(c, err)
	}
}

// handleTimetableError 统一课表模块错误映射
func handleTimetableError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTimetableEntryNotFound):
		response.NotFound(c, 15001, "课表条目不存在")
	case errors.Is(err, service.ErrTimetableFacultyNotFound):
		response.BadRequest(c, 15002, err.Error())
	case errors.Is(err, service.ErrTimetableBulkFilter):
		response.BadRequest(c, 15006, err.Error())
	case errors.Is(err, service.ErrTimetableInvalidEntry):
		response.BadRequest(c, 15007, err.Error())
	case errors.Is(err, service.ErrStudentProfileIncomplete):
		response.Error(c, http.StatusUnprocessableEntity, 15008, err.Error())
	case errors.Is(err, service.ErrTimetableOnlyForStudents):
		response.Forbidden(c, 15009, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 20001, "用户不存在")
	default:
		response.InternalError(c)
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
