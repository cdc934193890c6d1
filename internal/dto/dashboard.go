package dto

// DashboardStats 管理员看板统计
type DashboardStats struct {
	TotalRequests    int64 `json:"total_requests"`
	PendingRequests  int64 `json:"pending_requests"`
	ApprovedRequests int64 `json:"approved_requests"`
	RejectedRequests int64 `json:"rejected_requests"`
	TotalUsers       int64 `json:"total_users"`
	Students         int64 `json:"students"`
	Faculty          int64 `json:"faculty"`
	Admins           int64 `json:"admins"`
	TimetableEntries int64 `json:"timetable_entries"`
}
