package model

import "time"

// TimetableEntry 课表条目，对应 timetable_entries
// (course, semester) 作为一个整体管理：重新导入会替换该组合下的全部条目
type TimetableEntry struct {
	EntryID     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Date        *time.Time `gorm:"type:date"                                      json:"date,omitempty"`
	Day         string     `gorm:"type:varchar(10);not null"                      json:"day"`
	TimeSlot    string     `gorm:"type:varchar(50);not null"                      json:"time_slot"`
	SubjectName string     `gorm:"type:varchar(100);not null"                     json:"subject_name"`
	FacultyName string     `gorm:"type:varchar(100);not null;default:''"          json:"faculty_name"`
	FacultyID   *string    `gorm:"type:uuid"                                      json:"faculty_id,omitempty"`
	Course      string     `gorm:"type:varchar(100);not null"                     json:"course"`
	Semester    int        `gorm:"type:smallint;not null"                         json:"semester"`
	BaseModel
}

// TableName 指定表名
func (TimetableEntry) TableName() string { return "timetable_entries" }

// DateString 返回 yyyy-MM-dd 格式日期，未设置时为空串
func (e *TimetableEntry) DateString() string {
	if e.Date == nil {
		return ""
	}
	return e.Date.Format(DateLayout)
}

// DateLayout 日期存储与展示格式
const DateLayout = "2006-01-02"
