package handler

import (
	"attendease/backend/config"
	"attendease/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth      *AuthHandler
	User      *UserHandler
	Timetable *TimetableHandler
	Request   *RequestHandler
	Event     *EventHandler
	Dashboard *DashboardHandler
	Export    *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(cfg *config.Config, svc *service.Service) *Handler {
	return &Handler{
		Auth:      NewAuthHandler(svc.Auth, cfg),
		User:      NewUserHandler(svc.User),
		Timetable: NewTimetableHandler(svc.Timetable),
		Request:   NewRequestHandler(svc.Request),
		Event:     NewEventHandler(svc.Event),
		Dashboard: NewDashboardHandler(svc.Dashboard),
		Export:    NewExportHandler(svc.Export),
	}
}
