package dto

import "time"

// ── 缺课申请模块 DTO ──

// SubmitRequest 学生提交缺课申请
// approver_id 为教师用户 ID，或 "other" 配合 approver_name 转交管理员
type SubmitRequest struct {
	ClassIDs     []string `json:"class_ids"     binding:"required"`
	Reason       string   `json:"reason"        binding:"max=2000"`
	EventID      string   `json:"event_id"      binding:"omitempty,uuid"`
	ApproverID   string   `json:"approver_id"`
	ApproverName string   `json:"approver_name" binding:"max=100"`
}

// DecisionRequest 审批请求
type DecisionRequest struct {
	Status  string `json:"status"  binding:"required,oneof=Approved Rejected"`
	Comment string `json:"comment" binding:"max=2000"`
}

// RequestListRequest 管理员查询参数
type RequestListRequest struct {
	PaginationRequest
	Status  string `form:"status"  binding:"omitempty,oneof=Pending Approved Rejected"`
	Keyword string `form:"keyword" binding:"omitempty,max=50"`
}

// MissedClassResponse 申请中的单节课
type MissedClassResponse struct {
	ClassID     string `json:"class_id"`
	SubjectName string `json:"subject_name"`
	TimeSlot    string `json:"time_slot"`
	Day         string `json:"day"`
	Date        string `json:"date,omitempty"`
}

// RequestResponse 缺课申请
type RequestResponse struct {
	ID              string                `json:"id"`
	StudentID       string                `json:"student_id"`
	StudentName     string                `json:"student_name"`
	StudentPRN      string                `json:"student_prn"`
	MissedClasses   []MissedClassResponse `json:"missed_classes"`
	Reason          string                `json:"reason"`
	EventID         string                `json:"event_id,omitempty"`
	SubmittedAt     time.Time             `json:"submitted_at"`
	Status          string                `json:"status"`
	ApproverID      string                `json:"approver_id"`
	ApproverName    string                `json:"approver_name"`
	ApproverComment string                `json:"approver_comment,omitempty"`
	DecidedAt       *time.Time            `json:"decided_at,omitempty"`
}
