package service

import (
	"context"

	"go.uber.org/zap"

	"attendease/backend/internal/dto"
	"attendease/backend/internal/model"
	"attendease/backend/internal/repository"
)

// DashboardService 管理员看板统计
type DashboardService interface {
	Stats(ctx context.Context) (*dto.DashboardStats, error)
}

type dashboardService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewDashboardService 创建 DashboardService 实例
func NewDashboardService(repo *repository.Repository, logger *zap.Logger) DashboardService {
	return &dashboardService{repo: repo, logger: logger}
}

func (s *dashboardService) Stats(ctx context.Context) (*dto.DashboardStats, error) {
	byStatus, err := s.repo.Request.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("统计申请失败", zap.Error(err))
		return nil, err
	}
	byRole, err := s.repo.User.CountByRole(ctx)
	if err != nil {
		s.logger.Error("统计用户失败", zap.Error(err))
		return nil, err
	}
	entries, err := s.repo.Timetable.Count(ctx)
	if err != nil {
		s.logger.Error("统计课表失败", zap.Error(err))
		return nil, err
	}

	stats := &dto.DashboardStats{
		PendingRequests:  byStatus[model.RequestStatusPending],
		ApprovedRequests: byStatus[model.RequestStatusApproved],
		RejectedRequests: byStatus[model.RequestStatusRejected],
		Students:         byRole[model.RoleStudent],
		Faculty:          byRole[model.RoleFaculty],
		Admins:           byRole[model.RoleAdmin],
		TimetableEntries: entries,
	}
	for _, n := range byStatus {
		stats.TotalRequests += n
	}
	for _, n := range byRole {
		stats.TotalUsers += n
	}
	return stats, nil
}
