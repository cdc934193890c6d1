package dto

// ── 预批准活动 DTO ──

// EventRequest 新增/编辑活动
type EventRequest struct {
	Name        string `json:"name"        binding:"required,max=200"`
	Description string `json:"description" binding:"required,max=2000"`
}

// EventResponse 活动
type EventResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
