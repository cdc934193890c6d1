package model

// 角色
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

// 登录方式
const (
	AuthProviderPassword = "password"
	AuthProviderGoogle   = "google"
)

// User 用户表，对应 users
// PRN/Course/Semester 仅学生有效，Subjects 仅教师有效，其余角色保持为空
type User struct {
	UserID             string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"  json:"user_id"`
	Name               string      `gorm:"type:varchar(100);not null"                      json:"name"`
	Email              string      `gorm:"type:varchar(255);not null"                      json:"email"`
	PasswordHash       string      `gorm:"type:varchar(255);not null;default:''"           json:"-"`
	Role               string      `gorm:"type:varchar(20);not null;default:'student'"     json:"role"`
	AuthProvider       string      `gorm:"type:varchar(20);not null;default:'password'"    json:"auth_provider"`
	PRN                string      `gorm:"column:prn;type:varchar(50);not null;default:''" json:"prn,omitempty"`
	Course             string      `gorm:"type:varchar(100);not null;default:''"           json:"course,omitempty"`
	Semester           *int        `gorm:"type:smallint"                                   json:"semester,omitempty"`
	Subjects           StringArray `gorm:"type:text[]"                                     json:"subjects,omitempty"`
	MustChangePassword bool        `gorm:"not null;default:false"                          json:"must_change_password"`
	VersionedModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// ClearRoleFields 清除与当前角色不匹配的专属字段
func (u *User) ClearRoleFields() {
	if u.Role != RoleStudent {
		u.PRN = ""
		u.Course = ""
		u.Semester = nil
	}
	if u.Role != RoleFaculty {
		u.Subjects = nil
	}
}
