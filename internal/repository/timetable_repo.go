package repository

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"attendease/backend/internal/model"
)

// TimetableFilter 课表筛选条件
type TimetableFilter struct {
	Course   string
	Semester *int
}

// PairReplacement 一个 (course, semester) 组合被替换时删除的旧条目数
type PairReplacement struct {
	Course   string
	Semester int
	Deleted  int64
}

// TimetableRepository 课表数据访问接口
type TimetableRepository interface {
	Create(ctx context.Context, entry *model.TimetableEntry) error
	GetByID(ctx context.Context, id string) (*model.TimetableEntry, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.TimetableEntry, error)
	Update(ctx context.Context, entry *model.TimetableEntry) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TimetableFilter, page Page) ([]model.TimetableEntry, int64, error)
	ListByCourseSemester(ctx context.Context, course string, semester int) ([]model.TimetableEntry, error)
	DeleteByFilter(ctx context.Context, filter TimetableFilter) (int64, error)
	ReplaceByCourseSemester(ctx context.Context, entries []model.TimetableEntry) ([]PairReplacement, error)
	Count(ctx context.Context) (int64, error)
}

// timetableRepo TimetableRepository 的 GORM 实现
type timetableRepo struct {
	db *gorm.DB
}

// NewTimetableRepo 创建 TimetableRepository 实例
func NewTimetableRepo(db *gorm.DB) TimetableRepository {
	return &timetableRepo{db: db}
}

func (r *timetableRepo) Create(ctx context.Context, entry *model.TimetableEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *timetableRepo) GetByID(ctx context.Context, id string) (*model.TimetableEntry, error) {
	var entry model.TimetableEntry
	err := r.db.WithContext(ctx).
		Where("entry_id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *timetableRepo) GetByIDs(ctx context.Context, ids []string) ([]model.TimetableEntry, error) {
	var entries []model.TimetableEntry
	if len(ids) == 0 {
		return entries, nil
	}
	err := r.db.WithContext(ctx).
		Where("entry_id IN ?", ids).
		Find(&entries).Error
	return entries, err
}

func (r *timetableRepo) Update(ctx context.Context, entry *model.TimetableEntry) error {
	result := r.db.WithContext(ctx).
		Model(&model.TimetableEntry{}).
		Where("entry_id = ?", entry.EntryID).
		Updates(map[string]interface{}{
			"date":         entry.Date,
			"day":          entry.Day,
			"time_slot":    entry.TimeSlot,
			"subject_name": entry.SubjectName,
			"faculty_name": entry.FacultyName,
			"faculty_id":   entry.FacultyID,
			"course":       entry.Course,
			"semester":     entry.Semester,
			"updated_by":   entry.UpdatedBy,
			"updated_at":   gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *timetableRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("entry_id = ?", id).
		Delete(&model.TimetableEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *timetableRepo) List(ctx context.Context, filter TimetableFilter, page Page) ([]model.TimetableEntry, int64, error) {
	var entries []model.TimetableEntry
	var total int64

	db := applyTimetableFilter(r.db.WithContext(ctx).Model(&model.TimetableEntry{}), filter)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(page.Offset).Limit(page.Limit).
		Order("course ASC, semester ASC, date ASC NULLS LAST, time_slot ASC").
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *timetableRepo) ListByCourseSemester(ctx context.Context, course string, semester int) ([]model.TimetableEntry, error) {
	var entries []model.TimetableEntry
	err := r.db.WithContext(ctx).
		Where("course = ? AND semester = ?", course, semester).
		Order("date ASC NULLS LAST, time_slot ASC").
		Find(&entries).Error
	return entries, err
}

func (r *timetableRepo) DeleteByFilter(ctx context.Context, filter TimetableFilter) (int64, error) {
	result := applyTimetableFilter(r.db.WithContext(ctx), filter).
		Delete(&model.TimetableEntry{})
	return result.RowsAffected, result.Error
}

// ReplaceByCourseSemester 按 (course, semester) 分组整体替换课表
// 先删除本批次涉及的每个组合的全部旧条目，再批量插入新条目，全程在同一事务中
func (r *timetableRepo) ReplaceByCourseSemester(ctx context.Context, entries []model.TimetableEntry) ([]PairReplacement, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	type pairKey struct {
		course   string
		semester int
	}
	seen := make(map[pairKey]bool)
	var pairs []pairKey
	for _, e := range entries {
		k := pairKey{e.Course, e.Semester}
		if !seen[k] {
			seen[k] = true
			pairs = append(pairs, k)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].course != pairs[j].course {
			return pairs[i].course < pairs[j].course
		}
		return pairs[i].semester < pairs[j].semester
	})

	replaced := make([]PairReplacement, 0, len(pairs))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range pairs {
			result := tx.Where("course = ? AND semester = ?", p.course, p.semester).
				Delete(&model.TimetableEntry{})
			if result.Error != nil {
				return result.Error
			}
			replaced = append(replaced, PairReplacement{
				Course:   p.course,
				Semester: p.semester,
				Deleted:  result.RowsAffected,
			})
		}
		return tx.CreateInBatches(&entries, 500).Error
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (r *timetableRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.TimetableEntry{}).Count(&total).Error
	return total, err
}

func applyTimetableFilter(db *gorm.DB, filter TimetableFilter) *gorm.DB {
	if filter.Course != "" {
		db = db.Where("course = ?", filter.Course)
	}
	if filter.Semester != nil {
		db = db.Where("semester = ?", *filter.Semester)
	}
	return db
}
