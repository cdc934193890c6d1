package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"attendease/backend/config"
	"attendease/backend/internal/dto"
	"attendease/backend/internal/model"
	"attendease/backend/internal/repository"
)

// ── 课表模块业务错误 ──

var (
	ErrTimetableEntryNotFound     = errors.New("课表条目不存在")
	ErrTimetableFacultyNotFound   = errors.New("指定的教师不存在")
	ErrTimetableNoValidRows       = errors.New("没有可导入的有效行")
	ErrTimetableEmptyUpload       = errors.New("上传内容为空")
	ErrTimetableTooManyRows       = errors.New("上传行数超过上限")
	ErrTimetableBulkFilter        = errors.New("批量删除至少需要指定 course 或 semester")
	ErrTimetableInvalidEntry      = errors.New("课表条目校验失败")
	ErrStudentProfileIncomplete   = errors.New("学生资料缺少 course 或 semester，请联系管理员")
	ErrTimetableOnlyForStudents   = errors.New("仅学生可查看个人课表")
)

// 学生课表按周一至周日排列
var weekOrder = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// ── TimetableService 接口 ──────────────────────────────────
//
// 导入流程：
//   1. 逐行归一化、校验，失败行计入 skipped 并记录原因
//   2. 按姓名解析教师（忽略大小写与首尾空白），未匹配的记为警告
//   3. 按 (course, semester) 在单个事务内先删后插
// ─────────────────────────────────────────────────────────────

// TimetableService 课表模块业务接口
type TimetableService interface {
	// Upload 导入一批原始行
	Upload(ctx context.Context, rows []interface{}, callerID string) (*dto.UploadResponse, error)
	// UploadICS 解析 ICS 文件后按 Upload 流程导入，course / semester 由上传方指定
	UploadICS(ctx context.Context, r io.Reader, course, semester, callerID string) (*dto.UploadResponse, error)
	List(ctx context.Context, req *dto.TimetableListRequest) ([]dto.TimetableEntryResponse, int64, error)
	Create(ctx context.Context, req *dto.TimetableEntryRequest, callerID string) (*dto.TimetableEntryResponse, error)
	Update(ctx context.Context, id string, req *dto.TimetableEntryRequest, callerID string) (*dto.TimetableEntryResponse, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, req *dto.BulkDeleteTimetableRequest) (*dto.BulkDeleteTimetableResponse, error)
	// MySchedule 学生本人课表，按星期分组
	MySchedule(ctx context.Context, studentID string) ([]dto.DaySchedule, error)
}

type timetableService struct {
	cfg       *config.TimetableConfig
	repo      *repository.Repository
	validator *RowValidator
	loc       *time.Location
	logger    *zap.Logger
}

// NewTimetableService 创建 TimetableService 实例；loc 用于解析 ICS 中的时间
func NewTimetableService(cfg *config.TimetableConfig, repo *repository.Repository, loc *time.Location, logger *zap.Logger) TimetableService {
	if loc == nil {
		loc = time.Local
	}
	return &timetableService{
		cfg:       cfg,
		repo:      repo,
		validator: NewRowValidator(cfg.ScheduleMode),
		loc:       loc,
		logger:    logger,
	}
}

// ════════════════════════════════════════════════════════════
// Upload 批量导入
// ════════════════════════════════════════════════════════════

func (s *timetableService) Upload(ctx context.Context, rows []interface{}, callerID string) (*dto.UploadResponse, error) {
	if len(rows) == 0 {
		return nil, ErrTimetableEmptyUpload
	}
	if s.cfg.MaxUploadRows > 0 && len(rows) > s.cfg.MaxUploadRows {
		return nil, fmt.Errorf("%w（%d 行）", ErrTimetableTooManyRows, s.cfg.MaxUploadRows)
	}

	// 教师索引每次导入时重新构建
	faculty, err := s.repo.User.ListByRole(ctx, model.RoleFaculty)
	if err != nil {
		s.logger.Error("加载教师列表失败", zap.Error(err))
		return nil, err
	}
	dir := NewFacultyDirectory(faculty)

	resp := &dto.UploadResponse{ReplacedPairs: []dto.ReplacedPair{}}
	entries := make([]model.TimetableEntry, 0, len(rows))
	warned := make(map[string]bool)

	for i, raw := range rows {
		rowNum := i + 1

		norm, ok := NormalizeRow(raw)
		if !ok {
			resp.Errors = append(resp.Errors, dto.UploadRowError{Row: rowNum, Reason: "不是有效的记录"})
			continue
		}
		valid, err := s.validator.Validate(norm)
		if err != nil {
			resp.Errors = append(resp.Errors, dto.UploadRowError{Row: rowNum, Reason: err.Error()})
			continue
		}

		entry := toTimetableModel(valid, callerID)
		if valid.FacultyName != "" {
			if id := dir.Resolve(valid.FacultyName); id != "" {
				entry.FacultyID = &id
			} else if key := facultyKey(valid.FacultyName); !warned[key] {
				warned[key] = true
				if dir.IsAmbiguous(valid.FacultyName) {
					resp.Warnings = append(resp.Warnings, fmt.Sprintf("教师 %q 存在同名账号，相关课程未分配教师", valid.FacultyName))
				} else {
					resp.Warnings = append(resp.Warnings, fmt.Sprintf("未找到教师 %q，相关课程未分配教师", valid.FacultyName))
				}
			}
		}
		entries = append(entries, entry)
	}

	resp.Skipped = len(rows) - len(entries)
	if len(entries) == 0 {
		return resp, ErrTimetableNoValidRows
	}

	replaced, err := s.repo.Timetable.ReplaceByCourseSemester(ctx, entries)
	if err != nil {
		s.logger.Error("课表批量替换失败", zap.Int("entries", len(entries)), zap.Error(err))
		return nil, fmt.Errorf("课表导入失败: %w", err)
	}

	resp.Inserted = len(entries)
	for _, p := range replaced {
		resp.ReplacedPairs = append(resp.ReplacedPairs, dto.ReplacedPair{
			Course:   p.Course,
			Semester: p.Semester,
			Deleted:  p.Deleted,
		})
	}

	s.logger.Info("课表导入完成",
		zap.Int("inserted", resp.Inserted),
		zap.Int("skipped", resp.Skipped),
		zap.Int("pairs", len(resp.ReplacedPairs)),
		zap.String("by", callerID),
	)
	return resp, nil
}

func (s *timetableService) UploadICS(ctx context.Context, r io.Reader, course, semester, callerID string) (*dto.UploadResponse, error) {
	rows, err := ParseICSUpload(r, ICSImportOptions{
		Course:   strings.TrimSpace(course),
		Semester: strings.TrimSpace(semester),
		Mode:     s.cfg.ScheduleMode,
		Location: s.loc,
	})
	if err != nil {
		return nil, err
	}
	return s.Upload(ctx, rows, callerID)
}

// ════════════════════════════════════════════════════════════
// 单条维护
// ════════════════════════════════════════════════════════════

func (s *timetableService) List(ctx context.Context, req *dto.TimetableListRequest) ([]dto.TimetableEntryResponse, int64, error) {
	entries, total, err := s.repo.Timetable.List(ctx,
		repository.TimetableFilter{Course: req.Course, Semester: req.Semester},
		repository.Page{Offset: req.GetOffset(), Limit: req.GetPageSize()},
	)
	if err != nil {
		s.logger.Error("查询课表失败", zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.TimetableEntryResponse, 0, len(entries))
	for i := range entries {
		list = append(list, toTimetableResponse(&entries[i]))
	}
	return list, total, nil
}

func (s *timetableService) Create(ctx context.Context, req *dto.TimetableEntryRequest, callerID string) (*dto.TimetableEntryResponse, error) {
	entry, err := s.buildEntry(ctx, req, callerID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Timetable.Create(ctx, entry); err != nil {
		s.logger.Error("创建课表条目失败", zap.Error(err))
		return nil, err
	}

	resp := toTimetableResponse(entry)
	return &resp, nil
}

func (s *timetableService) Update(ctx context.Context, id string, req *dto.TimetableEntryRequest, callerID string) (*dto.TimetableEntryResponse, error) {
	existing, err := s.repo.Timetable.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimetableEntryNotFound
		}
		return nil, err
	}

	entry, err := s.buildEntry(ctx, req, callerID)
	if err != nil {
		return nil, err
	}
	entry.EntryID = existing.EntryID
	entry.CreatedAt = existing.CreatedAt
	entry.CreatedBy = existing.CreatedBy

	if err := s.repo.Timetable.Update(ctx, entry); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimetableEntryNotFound
		}
		s.logger.Error("更新课表条目失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	resp := toTimetableResponse(entry)
	return &resp, nil
}

func (s *timetableService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Timetable.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTimetableEntryNotFound
		}
		s.logger.Error("删除课表条目失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *timetableService) BulkDelete(ctx context.Context, req *dto.BulkDeleteTimetableRequest) (*dto.BulkDeleteTimetableResponse, error) {
	if req.Course == "" && req.Semester == nil {
		return nil, ErrTimetableBulkFilter
	}

	n, err := s.repo.Timetable.DeleteByFilter(ctx, repository.TimetableFilter{Course: req.Course, Semester: req.Semester})
	if err != nil {
		s.logger.Error("批量删除课表失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("批量删除课表", zap.String("course", req.Course), zap.Int64("deleted", n))
	return &dto.BulkDeleteTimetableResponse{Deleted: n}, nil
}

// ════════════════════════════════════════════════════════════
// MySchedule 学生课表
// ════════════════════════════════════════════════════════════

func (s *timetableService) MySchedule(ctx context.Context, studentID string) ([]dto.DaySchedule, error) {
	entries, err := studentEntries(ctx, s.repo, studentID)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string][]dto.TimetableEntryResponse)
	for i := range entries {
		byDay[entries[i].Day] = append(byDay[entries[i].Day], toTimetableResponse(&entries[i]))
	}

	days := make([]dto.DaySchedule, 0, len(weekOrder))
	for _, day := range weekOrder {
		list := byDay[day]
		if len(list) == 0 {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Date != list[j].Date {
				return list[i].Date < list[j].Date
			}
			return list[i].TimeSlot < list[j].TimeSlot
		})
		days = append(days, dto.DaySchedule{Day: day, Entries: list})
	}
	return days, nil
}

// studentEntries 查询学生所属 (course, semester) 的全部课表条目
func studentEntries(ctx context.Context, repo *repository.Repository, studentID string) ([]model.TimetableEntry, error) {
	user, err := repo.User.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Role != model.RoleStudent {
		return nil, ErrTimetableOnlyForStudents
	}
	if user.Course == "" || user.Semester == nil {
		return nil, ErrStudentProfileIncomplete
	}
	return repo.Timetable.ListByCourseSemester(ctx, user.Course, *user.Semester)
}

// ── 内部辅助方法 ──

// buildEntry 复用导入校验规则校验手动录入的条目
func (s *timetableService) buildEntry(ctx context.Context, req *dto.TimetableEntryRequest, callerID string) (*model.TimetableEntry, error) {
	valid, err := s.validator.Validate(NormalizedRow{
		Date:     req.Date,
		Day:      req.Day,
		TimeSlot: req.TimeSlot,
		Subject:  req.SubjectName,
		Faculty:  req.FacultyName,
		Course:   req.Course,
		Semester: strconv.Itoa(req.Semester),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTimetableInvalidEntry, err.Error())
	}

	entry := toTimetableModel(valid, callerID)

	switch {
	case req.FacultyID != "":
		fac, err := s.repo.User.GetByID(ctx, req.FacultyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTimetableFacultyNotFound
			}
			return nil, err
		}
		if fac.Role != model.RoleFaculty {
			return nil, ErrTimetableFacultyNotFound
		}
		entry.FacultyID = &fac.UserID
		entry.FacultyName = fac.Name
	case entry.FacultyName != "":
		faculty, err := s.repo.User.ListByRole(ctx, model.RoleFaculty)
		if err != nil {
			return nil, err
		}
		if id := NewFacultyDirectory(faculty).Resolve(entry.FacultyName); id != "" {
			entry.FacultyID = &id
		}
	}

	return &entry, nil
}

func toTimetableModel(v *ValidatedEntry, callerID string) model.TimetableEntry {
	e := model.TimetableEntry{
		Date:        v.Date,
		Day:         v.Day,
		TimeSlot:    v.TimeSlot,
		SubjectName: v.SubjectName,
		FacultyName: v.FacultyName,
		Course:      v.Course,
		Semester:    v.Semester,
	}
	if callerID != "" {
		e.CreatedBy = &callerID
		e.UpdatedBy = &callerID
	}
	return e
}

func toTimetableResponse(e *model.TimetableEntry) dto.TimetableEntryResponse {
	resp := dto.TimetableEntryResponse{
		ID:          e.EntryID,
		Date:        e.DateString(),
		Day:         e.Day,
		TimeSlot:    e.TimeSlot,
		SubjectName: e.SubjectName,
		FacultyName: e.FacultyName,
		Course:      e.Course,
		Semester:    e.Semester,
	}
	if e.FacultyID != nil {
		resp.FacultyID = *e.FacultyID
	}
	return resp
}
