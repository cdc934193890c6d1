package model

// Event 预批准活动，对应 events
type Event struct {
	EventID     string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string `gorm:"type:varchar(200);not null"                     json:"name"`
	Description string `gorm:"type:text;not null"                             json:"description"`
	BaseModel
}

// TableName 指定表名
func (Event) TableName() string { return "events" }
