package dto

// ── 课表模块 DTO ──

// TimetableListRequest 课表列表查询参数
type TimetableListRequest struct {
	PaginationRequest
	Course   string `form:"course"   binding:"omitempty,max=100"`
	Semester *int   `form:"semester" binding:"omitempty,min=1,max=32767"`
}

// TimetableEntryRequest 手动新增/编辑单条课表
// date 模式下填写 date（day 由日期推导）；weekday 模式下填写 day
type TimetableEntryRequest struct {
	Date        string `json:"date"         binding:"omitempty"`
	Day         string `json:"day"          binding:"omitempty"`
	TimeSlot    string `json:"time_slot"    binding:"required,max=50"`
	SubjectName string `json:"subject_name" binding:"required,max=100"`
	FacultyID   string `json:"faculty_id"   binding:"omitempty,uuid"`
	FacultyName string `json:"faculty_name" binding:"omitempty,max=100"`
	Course      string `json:"course"       binding:"required,max=100"`
	Semester    int    `json:"semester"     binding:"required,min=1,max=32767"`
}

// BulkDeleteTimetableRequest 按 course/semester 批量删除
type BulkDeleteTimetableRequest struct {
	Course   string `json:"course"   binding:"omitempty,max=100"`
	Semester *int   `json:"semester" binding:"omitempty,min=1,max=32767"`
}

// BulkDeleteTimetableResponse 批量删除结果
type BulkDeleteTimetableResponse struct {
	Deleted int64 `json:"deleted"`
}

// TimetableEntryResponse 课表条目
type TimetableEntryResponse struct {
	ID          string `json:"id"`
	Date        string `json:"date,omitempty"`
	Day         string `json:"day"`
	TimeSlot    string `json:"time_slot"`
	SubjectName string `json:"subject_name"`
	FacultyName string `json:"faculty_name"`
	FacultyID   string `json:"faculty_id,omitempty"`
	Course      string `json:"course"`
	Semester    int    `json:"semester"`
}

// DaySchedule 学生视图中某一天的课程
type DaySchedule struct {
	Day     string                   `json:"day"`
	Entries []TimetableEntryResponse `json:"entries"`
}

// ── 批量导入 ──

// UploadRowsRequest JSON 方式上传的原始行
type UploadRowsRequest struct {
	Rows []interface{} `json:"rows" binding:"required"`
}

// UploadResponse 导入结果
type UploadResponse struct {
	Inserted      int              `json:"inserted"`
	Skipped       int              `json:"skipped"`
	ReplacedPairs []ReplacedPair   `json:"replaced_pairs"`
	Warnings      []string         `json:"warnings,omitempty"`
	Errors        []UploadRowError `json:"errors,omitempty"`
}

// ReplacedPair 被整体替换的 (course, semester) 组合
type ReplacedPair struct {
	Course   string `json:"course"`
	Semester int    `json:"semester"`
	Deleted  int64  `json:"deleted"`
}

// UploadRowError 单行校验失败原因，row 从 1 开始（不含表头）
type UploadRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
