package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"attendease/backend/internal/model"
	pkgerrors "attendease/backend/pkg/errors"
)

// RequestFilter 缺课申请筛选条件
type RequestFilter struct {
	Status  string
	Keyword string // 模糊匹配学生姓名、PRN、课程名
}

// Decision 审批结果
type Decision struct {
	Status    string
	Comment   string
	DecidedBy string
	DecidedAt time.Time
}

// RequestRepository 缺课申请数据访问接口
type RequestRepository interface {
	Create(ctx context.Context, req *model.MissedClassRequest) error
	GetByID(ctx context.Context, id string) (*model.MissedClassRequest, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.MissedClassRequest, error)
	ListPendingByApprovers(ctx context.Context, approverIDs []string) ([]model.MissedClassRequest, error)
	List(ctx context.Context, filter RequestFilter, page Page) ([]model.MissedClassRequest, int64, error)
	ListAll(ctx context.Context, filter RequestFilter) ([]model.MissedClassRequest, error)
	Decide(ctx context.Context, id string, d Decision) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// requestRepo RequestRepository 的 GORM 实现
type requestRepo struct {
	db *gorm.DB
}

// NewRequestRepo 创建 RequestRepository 实例
func NewRequestRepo(db *gorm.DB) RequestRepository {
	return &requestRepo{db: db}
}

func (r *requestRepo) Create(ctx context.Context, req *model.MissedClassRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.MissedClassRequest, error) {
	var req model.MissedClassRequest
	err := r.db.WithContext(ctx).
		Where("request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepo) ListByStudent(ctx context.Context, studentID string) ([]model.MissedClassRequest, error) {
	var reqs []model.MissedClassRequest
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("submitted_at DESC").
		Find(&reqs).Error
	return reqs, err
}

func (r *requestRepo) ListPendingByApprovers(ctx context.Context, approverIDs []string) ([]model.MissedClassRequest, error) {
	var reqs []model.MissedClassRequest
	if len(approverIDs) == 0 {
		return reqs, nil
	}
	err := r.db.WithContext(ctx).
		Where("approver_id IN ? AND status = ?", approverIDs, model.RequestStatusPending).
		Order("submitted_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *requestRepo) List(ctx context.Context, filter RequestFilter, page Page) ([]model.MissedClassRequest, int64, error) {
	var reqs []model.MissedClassRequest
	var total int64

	db := applyRequestFilter(r.db.WithContext(ctx).Model(&model.MissedClassRequest{}), filter)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(page.Offset).Limit(page.Limit).
		Order("submitted_at DESC").
		Find(&reqs).Error; err != nil {
		return nil, 0, err
	}

	return reqs, total, nil
}

func (r *requestRepo) ListAll(ctx context.Context, filter RequestFilter) ([]model.MissedClassRequest, error) {
	var reqs []model.MissedClassRequest
	err := applyRequestFilter(r.db.WithContext(ctx), filter).
		Order("submitted_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// Decide 条件更新：仅当申请仍为 Pending 时写入审批结果
// 影响行数为 0 说明已被并发审批，返回 ErrOptimisticLock
func (r *requestRepo) Decide(ctx context.Context, id string, d Decision) error {
	result := r.db.WithContext(ctx).
		Model(&model.MissedClassRequest{}).
		Where("request_id = ? AND status = ?", id, model.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":           d.Status,
			"approver_comment": d.Comment,
			"decided_by":       d.DecidedBy,
			"decided_at":       d.DecidedAt,
			"updated_by":       d.DecidedBy,
			"updated_at":       d.DecidedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

func (r *requestRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.MissedClassRequest{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func applyRequestFilter(db *gorm.DB, filter RequestFilter) *gorm.DB {
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		like := "%" + kw + "%"
		db = db.Where(
			"student_name ILIKE ? OR student_prn ILIKE ? OR EXISTS ("+
				"SELECT 1 FROM jsonb_array_elements(missed_classes) AS mc WHERE mc->>'subject_name' ILIKE ?)",
			like, like, like,
		)
	}
	return db
}
