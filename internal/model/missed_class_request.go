package model

import (
	"time"

	"gorm.io/datatypes"
)

// 申请状态
const (
	RequestStatusPending  = "Pending"
	RequestStatusApproved = "Approved"
	RequestStatusRejected = "Rejected"
)

// ApproverOther 学生选择“其他审批人”时提交的哨兵值
const ApproverOther = "other"

// MissedClass 申请中的单节课快照
type MissedClass struct {
	ClassID     string `json:"class_id"`
	SubjectName string `json:"subject_name"`
	TimeSlot    string `json:"time_slot"`
	Day         string `json:"day"`
	Date        string `json:"date,omitempty"`
}

// MissedClassRequest 缺课申请，对应 missed_class_requests
// 一份申请的所有课程共享同一审批人；状态仅允许 Pending → Approved | Rejected 一次
type MissedClassRequest struct {
	RequestID       string                          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	StudentID       string                          `gorm:"type:uuid;not null;index"                       json:"student_id"`
	StudentName     string                          `gorm:"type:varchar(100);not null"                     json:"student_name"`
	StudentPRN      string                          `gorm:"column:student_prn;type:varchar(50);not null"   json:"student_prn"`
	MissedClasses   datatypes.JSONSlice[MissedClass] `gorm:"type:jsonb;not null"                            json:"missed_classes"`
	Reason          string                          `gorm:"type:text;not null"                             json:"reason"`
	EventID         *string                         `gorm:"type:uuid"                                      json:"event_id,omitempty"`
	SubmittedAt     time.Time                       `gorm:"not null"                                       json:"submitted_at"`
	Status          string                          `gorm:"type:varchar(20);not null;default:'Pending'"    json:"status"`
	ApproverID      string                          `gorm:"type:varchar(64);not null;index"                json:"approver_id"`
	ApproverName    string                          `gorm:"type:varchar(100);not null"                     json:"approver_name"`
	ApproverComment string                          `gorm:"type:text;not null;default:''"                  json:"approver_comment,omitempty"`
	DecidedAt       *time.Time                      `                                                      json:"decided_at,omitempty"`
	DecidedBy       *string                         `gorm:"type:uuid"                                      json:"decided_by,omitempty"`
	BaseModel
}

// TableName 指定表名
func (MissedClassRequest) TableName() string { return "missed_class_requests" }

// IsPending 是否待审批
func (r *MissedClassRequest) IsPending() bool { return r.Status == RequestStatusPending }
