package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"attendease/backend/internal/dto"
)

func TestEventService_CRUD(t *testing.T) {
	repos := newTestRepos()
	svc := NewEventService(repos.repo, zap.NewNop())
	ctx := context.Background()

	created, err := svc.Create(ctx, &dto.EventRequest{Name: "  Tech Fest ", Description: "Annual fest"}, "admin-1")
	if err != nil {
		t.Fatalf("创建活动应成功: %v", err)
	}
	if created.Name != "Tech Fest" {
		t.Errorf("名称应去除首尾空白，实际 %q", created.Name)
	}
	if by := repos.events.events[created.ID].CreatedBy; by == nil || *by != "admin-1" {
		t.Error("应记录创建人")
	}

	_, _ = svc.Create(ctx, &dto.EventRequest{Name: "Sports Day", Description: "Inter-college"}, "admin-1")
	list, err := svc.List(ctx)
	if err != nil || len(list) != 2 || list[0].Name != "Sports Day" {
		t.Errorf("活动列表应按名称排序: %+v, %v", list, err)
	}

	updated, err := svc.Update(ctx, created.ID, &dto.EventRequest{Name: "Tech Fest 2025", Description: "Annual fest"}, "admin-2")
	if err != nil || updated.Name != "Tech Fest 2025" {
		t.Fatalf("更新活动失败: %+v, %v", updated, err)
	}

	got, err := svc.GetByID(ctx, created.ID)
	if err != nil || got.Name != "Tech Fest 2025" {
		t.Errorf("查询结果不符: %+v, %v", got, err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("删除活动失败: %v", err)
	}
	if _, err := svc.GetByID(ctx, created.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("期望 ErrEventNotFound，实际 %v", err)
	}
}

func TestEventService_NotFound(t *testing.T) {
	svc := NewEventService(newTestRepos().repo, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Update(ctx, "missing", &dto.EventRequest{Name: "X", Description: "Y"}, "admin-1"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Update 期望 ErrEventNotFound，实际 %v", err)
	}
	if err := svc.Delete(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Delete 期望 ErrEventNotFound，实际 %v", err)
	}
}
