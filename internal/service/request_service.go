package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"attendease/backend/config"
	"attendease/backend/internal/dto"
	"attendease/backend/internal/model"
	"attendease/backend/internal/repository"
	pkgerrors "attendease/backend/pkg/errors"
	"attendease/backend/pkg/mail"
)

// ── 缺课申请模块业务错误 ──

var (
	ErrRequestNotFound             = errors.New("申请不存在")
	ErrRequestNoClasses            = errors.New("至少选择一节课")
	ErrRequestReasonRequired       = errors.New("请填写缺课原因")
	ErrRequestApproverRequired     = errors.New("请选择审批人")
	ErrRequestApproverNameRequired = errors.New("选择其他审批人时须填写审批人姓名")
	ErrRequestApproverInvalid      = errors.New("审批人不是有效的教师")
	ErrRequestClassNotFound        = errors.New("所选课程不存在")
	ErrRequestClassNotInTimetable  = errors.New("所选课程不在本人课表内")
	ErrRequestEventNotFound        = errors.New("所选活动不存在")
	ErrRequestOnlyStudents         = errors.New("仅学生可提交缺课申请")
	ErrRequestInvalidStatus        = errors.New("审批结果只能是 Approved 或 Rejected")
	ErrRequestCommentRequired      = errors.New("驳回时必须填写意见")
	ErrRequestAlreadyDecided       = errors.New("申请已审批，不能重复处理")
	ErrRequestForbidden            = errors.New("无权处理该申请")
)

// ── RequestService 接口 ──────────────────────────────────
//
// 状态机：Pending → Approved | Rejected，终态不可再变
// 一份申请只有一个审批人：教师用户 ID，或管理员队列（学生选择 other 时）
// ─────────────────────────────────────────────────────────────

// RequestService 缺课申请业务接口
type RequestService interface {
	// Submit 学生提交申请，校验失败时不写入任何数据
	Submit(ctx context.Context, studentID string, req *dto.SubmitRequest) (*dto.RequestResponse, error)
	// Decide 审批，仅审批人本人或管理员可操作
	Decide(ctx context.Context, caller Caller, id string, req *dto.DecisionRequest) (*dto.RequestResponse, error)
	Get(ctx context.Context, caller Caller, id string) (*dto.RequestResponse, error)
	// Mine 学生本人的申请，最新在前
	Mine(ctx context.Context, studentID string) ([]dto.RequestResponse, error)
	// Inbox 待审批申请，最早在前；管理员额外包含管理员队列
	Inbox(ctx context.Context, caller Caller) ([]dto.RequestResponse, error)
	List(ctx context.Context, req *dto.RequestListRequest) ([]dto.RequestResponse, int64, error)
}

type requestService struct {
	cfg    *config.RequestConfig
	repo   *repository.Repository
	mailer mail.Sender
	logger *zap.Logger
	now    func() time.Time
}

// NewRequestService 创建 RequestService 实例
func NewRequestService(cfg *config.RequestConfig, repo *repository.Repository, mailer mail.Sender, logger *zap.Logger) RequestService {
	return &requestService{
		cfg:    cfg,
		repo:   repo,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
}

// ════════════════════════════════════════════════════════════
// Submit 路由到审批人
// ════════════════════════════════════════════════════════════

func (s *requestService) Submit(ctx context.Context, studentID string, req *dto.SubmitRequest) (*dto.RequestResponse, error) {
	// 1. 基础字段
	classIDs := dedupeIDs(req.ClassIDs)
	if len(classIDs) == 0 {
		return nil, ErrRequestNoClasses
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrRequestReasonRequired
	}
	approverID := strings.TrimSpace(req.ApproverID)
	if approverID == "" {
		return nil, ErrRequestApproverRequired
	}
	approverName := strings.TrimSpace(req.ApproverName)
	if approverID == model.ApproverOther && approverName == "" {
		return nil, ErrRequestApproverNameRequired
	}

	// 2. 学生资料
	student, err := s.repo.User.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, ErrRequestOnlyStudents
	}
	if student.Course == "" || student.Semester == nil {
		return nil, ErrStudentProfileIncomplete
	}

	// 3. 审批人
	if approverID == model.ApproverOther {
		approverID = s.cfg.AdminQueueID
	} else {
		approver, err := s.repo.User.GetByID(ctx, approverID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrRequestApproverInvalid
			}
			return nil, err
		}
		if approver.Role != model.RoleFaculty {
			return nil, ErrRequestApproverInvalid
		}
		approverName = approver.Name
	}

	// 4. 关联活动
	var eventID *string
	if req.EventID != "" {
		if _, err := s.repo.Event.GetByID(ctx, req.EventID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrRequestEventNotFound
			}
			return nil, err
		}
		id := req.EventID
		eventID = &id
	}

	// 5. 课程快照，保持提交顺序
	missed, err := s.resolveClasses(ctx, classIDs, student)
	if err != nil {
		return nil, err
	}

	record := &model.MissedClassRequest{
		StudentID:     student.UserID,
		StudentName:   student.Name,
		StudentPRN:    student.PRN,
		MissedClasses: missed,
		Reason:        reason,
		EventID:       eventID,
		SubmittedAt:   s.now(),
		Status:        model.RequestStatusPending,
		ApproverID:    approverID,
		ApproverName:  approverName,
	}
	record.CreatedBy = &student.UserID

	if err := s.repo.Request.Create(ctx, record); err != nil {
		s.logger.Error("保存缺课申请失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("缺课申请已提交",
		zap.String("id", record.RequestID),
		zap.String("approver_id", record.ApproverID),
		zap.Int("classes", len(missed)),
	)
	resp := toRequestResponse(record)
	return &resp, nil
}

func (s *requestService) resolveClasses(ctx context.Context, ids []string, student *model.User) ([]model.MissedClass, error) {
	entries, err := s.repo.Timetable.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.TimetableEntry, len(entries))
	for i := range entries {
		byID[entries[i].EntryID] = &entries[i]
	}

	missed := make([]model.MissedClass, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, ErrRequestClassNotFound
		}
		if e.Course != student.Course || e.Semester != *student.Semester {
			return nil, ErrRequestClassNotInTimetable
		}
		missed = append(missed, model.MissedClass{
			ClassID:     e.EntryID,
			SubjectName: e.SubjectName,
			TimeSlot:    e.TimeSlot,
			Day:         e.Day,
			Date:        e.DateString(),
		})
	}
	return missed, nil
}

// ════════════════════════════════════════════════════════════
// Decide 审批状态机
// ════════════════════════════════════════════════════════════

func (s *requestService) Decide(ctx context.Context, caller Caller, id string, req *dto.DecisionRequest) (*dto.RequestResponse, error) {
	if req.Status != model.RequestStatusApproved && req.Status != model.RequestStatusRejected {
		return nil, ErrRequestInvalidStatus
	}
	comment := strings.TrimSpace(req.Comment)
	if req.Status == model.RequestStatusRejected && comment == "" {
		return nil, ErrRequestCommentRequired
	}

	record, err := s.getRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canDecide(caller, record) {
		return nil, ErrRequestForbidden
	}
	if !record.IsPending() {
		return nil, ErrRequestAlreadyDecided
	}

	now := s.now()
	err = s.repo.Request.Decide(ctx, id, repository.Decision{
		Status:    req.Status,
		Comment:   comment,
		DecidedBy: caller.UserID,
		DecidedAt: now,
	})
	if err != nil {
		// 并发审批冲突属于业务结果，不记错误日志
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("保存审批结果失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	record.Status = req.Status
	record.ApproverComment = comment
	record.DecidedAt = &now
	record.DecidedBy = &caller.UserID

	s.logger.Info("缺课申请已审批",
		zap.String("id", id),
		zap.String("status", req.Status),
		zap.String("by", caller.UserID),
	)
	s.notifyStudent(ctx, record)

	resp := toRequestResponse(record)
	return &resp, nil
}

// canDecide 管理员可处理任何申请；教师只能处理指派给自己的申请
func (s *requestService) canDecide(caller Caller, r *model.MissedClassRequest) bool {
	if caller.Role == model.RoleAdmin {
		return true
	}
	return caller.Role == model.RoleFaculty && r.ApproverID == caller.UserID
}

// notifyStudent 邮件通知审批结果，失败只记录日志
func (s *requestService) notifyStudent(ctx context.Context, r *model.MissedClassRequest) {
	student, err := s.repo.User.GetByID(ctx, r.StudentID)
	if err != nil {
		s.logger.Warn("审批通知：查询学生失败", zap.String("student_id", r.StudentID), zap.Error(err))
		return
	}

	subjects := make([]string, 0, len(r.MissedClasses))
	for _, c := range r.MissedClasses {
		subjects = append(subjects, c.SubjectName)
	}
	text := fmt.Sprintf("您好 %s：\n\n您的缺课申请（%s）已被 %s 处理，结果：%s。",
		student.Name, strings.Join(subjects, ", "), r.ApproverName, r.Status)
	if r.ApproverComment != "" {
		text += "\n审批意见：" + r.ApproverComment
	}

	err = s.mailer.Send(ctx, mail.Message{
		ToAddress: student.Email,
		ToName:    student.Name,
		Subject:   "缺课申请审批结果：" + r.Status,
		Text:      text,
	})
	if err != nil {
		s.logger.Warn("发送审批通知失败", zap.String("request_id", r.RequestID), zap.Error(err))
	}
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func (s *requestService) Get(ctx context.Context, caller Caller, id string) (*dto.RequestResponse, error) {
	record, err := s.getRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	visible := caller.Role == model.RoleAdmin ||
		record.StudentID == caller.UserID ||
		record.ApproverID == caller.UserID
	if !visible {
		return nil, ErrRequestForbidden
	}

	resp := toRequestResponse(record)
	return &resp, nil
}

func (s *requestService) Mine(ctx context.Context, studentID string) ([]dto.RequestResponse, error) {
	records, err := s.repo.Request.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询本人申请失败", zap.Error(err))
		return nil, err
	}
	return toRequestResponses(records), nil
}

func (s *requestService) Inbox(ctx context.Context, caller Caller) ([]dto.RequestResponse, error) {
	approverIDs := []string{caller.UserID}
	if caller.Role == model.RoleAdmin {
		approverIDs = append(approverIDs, s.cfg.AdminQueueID)
	}

	records, err := s.repo.Request.ListPendingByApprovers(ctx, approverIDs)
	if err != nil {
		s.logger.Error("查询待审批申请失败", zap.Error(err))
		return nil, err
	}
	return toRequestResponses(records), nil
}

func (s *requestService) List(ctx context.Context, req *dto.RequestListRequest) ([]dto.RequestResponse, int64, error) {
	records, total, err := s.repo.Request.List(ctx,
		repository.RequestFilter{Status: req.Status, Keyword: req.Keyword},
		repository.Page{Offset: req.GetOffset(), Limit: req.GetPageSize()},
	)
	if err != nil {
		s.logger.Error("查询申请列表失败", zap.Error(err))
		return nil, 0, err
	}
	return toRequestResponses(records), total, nil
}

// ── 内部辅助方法 ──

func (s *requestService) getRequest(ctx context.Context, id string) (*model.MissedClassRequest, error) {
	record, err := s.repo.Request.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		s.logger.Error("查询申请失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return record, nil
}

// dedupeIDs 去除空白与重复 ID，保持原有顺序
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func toRequestResponses(records []model.MissedClassRequest) []dto.RequestResponse {
	list := make([]dto.RequestResponse, 0, len(records))
	for i := range records {
		list = append(list, toRequestResponse(&records[i]))
	}
	return list
}

func toRequestResponse(r *model.MissedClassRequest) dto.RequestResponse {
	classes := make([]dto.MissedClassResponse, 0, len(r.MissedClasses))
	for _, c := range r.MissedClasses {
		classes = append(classes, dto.MissedClassResponse{
			ClassID:     c.ClassID,
			SubjectName: c.SubjectName,
			TimeSlot:    c.TimeSlot,
			Day:         c.Day,
			Date:        c.Date,
		})
	}

	resp := dto.RequestResponse{
		ID:              r.RequestID,
		StudentID:       r.StudentID,
		StudentName:     r.StudentName,
		StudentPRN:      r.StudentPRN,
		MissedClasses:   classes,
		Reason:          r.Reason,
		SubmittedAt:     r.SubmittedAt,
		Status:          r.Status,
		ApproverID:      r.ApproverID,
		ApproverName:    r.ApproverName,
		ApproverComment: r.ApproverComment,
		DecidedAt:       r.DecidedAt,
	}
	if r.EventID != nil {
		resp.EventID = *r.EventID
	}
	return resp
}
